// Package config holds the parameters of a consolidation or correlation run
// and loads runner files (YAML) that replace hardcoded script paths.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lox/bogwatch/internal/analysis"
	"github.com/lox/bogwatch/internal/ingest"
	"github.com/lox/bogwatch/internal/summary"
)

// Consolidate configures the station consolidation pipeline.
type Consolidate struct {
	InputDir         string  `yaml:"input_dir" json:"input_dir" validate:"required"`
	DateFormat       string  `yaml:"date_format" json:"date_format" validate:"required"`
	MissingThreshold float64 `yaml:"missing_threshold" json:"missing_threshold" validate:"gte=0,lte=1"`
	MinMonths        int     `yaml:"min_months" json:"min_months" validate:"gte=1,lte=12"`
	Outputs          Outputs `yaml:"outputs" json:"outputs"`
	Database         string  `yaml:"database" json:"-"`
	MetricsFile      string  `yaml:"metrics_file" json:"-"`
	PreviewRows      int     `yaml:"preview_rows" json:"-" validate:"gte=0"`
}

// Outputs lists the files a consolidation writes. Empty paths are skipped;
// at least the monthly or annual long table must be requested.
type Outputs struct {
	Monthly     string `yaml:"monthly" json:"monthly" validate:"required_without=Annual"`
	MonthlyWide string `yaml:"monthly_wide" json:"monthly_wide"`
	Annual      string `yaml:"annual" json:"annual" validate:"required_without=Monthly"`
	AnnualWide  string `yaml:"annual_wide" json:"annual_wide"`
	Workbook    string `yaml:"workbook" json:"workbook"`
}

func DefaultConsolidate() Consolidate {
	return Consolidate{
		DateFormat:       ingest.DefaultDateFormat,
		MissingThreshold: summary.DefaultMissingThreshold,
		MinMonths:        summary.DefaultMinMonths,
		Outputs:          Outputs{Monthly: "monthly_rain_summary.csv"},
		PreviewRows:      10,
	}
}

func (c Consolidate) SummaryOptions() summary.Options {
	return summary.Options{MissingThreshold: c.MissingThreshold, MinMonths: c.MinMonths}
}

// Correlate configures the vegetation/rainfall correlation tool.
type Correlate struct {
	Vegetation string    `json:"vegetation" validate:"required"`
	Rainfall   string    `json:"rainfall" validate:"required"`
	Seasons    []string  `json:"seasons" validate:"min=1,dive,required"`
	Lags       []int     `json:"lags" validate:"min=1"`
	StartYear  int       `json:"start_year"`
	MinIndex   float64   `json:"min_index"`
	Site       string    `json:"site"`
	RainLabel  string    `json:"rain_label"`
	RainStyle  string    `json:"rain_style" validate:"oneof=bars line"`
	RainRange  []float64 `json:"rain_range" validate:"omitempty,len=2"`
	PlotDir    string    `json:"plot_dir"`
	ScatterLag int       `json:"scatter_lag"`
	Output     string    `json:"output"`
	Database   string    `json:"-"`
}

func DefaultCorrelate() Correlate {
	return Correlate{
		Seasons:   []string{"SUMMER", "WINTER"},
		Lags:      append([]int(nil), analysis.DefaultLags...),
		StartYear: 1984,
		MinIndex:  0.25,
		Site:      "Clara Bog",
		RainLabel: "Annual Rainfall",
		RainStyle: "bars",
		RainRange: []float64{500, 1800},
		Output:    "lag_correlations.csv",
	}
}

func (c Correlate) SeriesOptions(season string) ingest.SeriesOptions {
	return ingest.SeriesOptions{Season: season, StartYear: c.StartYear, MinIndex: c.MinIndex}
}

var validate = validator.New()

// Validate checks a configuration struct against its validate tags.
func Validate(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// Load reads a runner file. Fields absent from the file keep the defaults of
// DefaultConsolidate; relative paths are resolved against the file's folder.
func Load(path string) (*Consolidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConsolidate()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for _, p := range []*string{
		&cfg.InputDir, &cfg.Database, &cfg.MetricsFile,
		&cfg.Outputs.Monthly, &cfg.Outputs.MonthlyWide,
		&cfg.Outputs.Annual, &cfg.Outputs.AnnualWide, &cfg.Outputs.Workbook,
	} {
		*p = resolve(base, *p)
	}
	return &cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
