package models

import (
	"database/sql"
	"time"
)

// StationMeta identifies a rainfall station. Values are kept as the literal
// CSV text so outputs echo the inputs exactly.
type StationMeta struct {
	Number    string
	Name      string
	Height    string
	Easting   string
	Northing  string
	Latitude  string
	Longitude string
}

type DailyRecord struct {
	Station StationMeta
	Date    time.Time
	Rain    sql.NullFloat64 // invalid when missing or unparseable
	Source  string
}

type VegetationObservation struct {
	Year   int
	Season string // upper-cased, e.g. "SUMMER", "WINTER"
	Index  float64
	Water  sql.NullFloat64
}

type RainfallYear struct {
	Year        int
	Millimeters float64
}

// YearValue is one point of a per-year series.
type YearValue struct {
	Year  int
	Value float64
}

type MonthlySummary struct {
	Station         StationMeta
	YearMonth       string // "2006-01"
	MonthlyRainfall float64
	DaysCount       int
	MissingCount    int
	PctMissing      float64
	IncompleteMonth bool
}

type AnnualSummary struct {
	Station            StationMeta
	Year               int
	AnnualRainfall     float64
	DaysCount          int
	MissingCount       int
	PctMissing         float64
	MonthsObserved     int
	MissingMonths      int
	IncompleteYear     bool
	InsufficientMonths bool
	Flagged            bool
}

// WideTable is a station-by-period pivot of rainfall totals.
type WideTable struct {
	Periods []string
	Rows    []WideRow
}

type WideRow struct {
	Station StationMeta
	Values  []sql.NullFloat64 // aligned with WideTable.Periods
}

type LagCorrelation struct {
	Season     string
	LagYears   int
	N          int
	PearsonR   float64
	PearsonP   float64
	SpearmanR  float64
	SpearmanP  float64
	KendallTau float64
	KendallP   float64
}

type Regression struct {
	Slope     float64
	Intercept float64
	R         float64
	P         float64
	StdErr    float64
	N         int
}

type Run struct {
	ID        string
	Command   string
	Input     string
	Params    string // JSON
	StartedAt time.Time
}
