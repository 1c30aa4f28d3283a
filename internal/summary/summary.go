// Package summary reduces daily station records to monthly and annual totals
// with missing-data quality flags, and pivots them into wide tables.
//
// A record with null rain counts as missing. A date with no row at all does
// not: missingness is measured over the rows a station file actually carries.
package summary

import (
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/lox/bogwatch/internal/metrics"
	"github.com/lox/bogwatch/internal/models"
)

const (
	DefaultMissingThreshold = 0.2
	DefaultMinMonths        = 10
	monthsPerYear           = 12
)

type Options struct {
	// MissingThreshold is the fraction of missing rows a period may carry
	// before it is flagged incomplete. Equal to the threshold is not flagged.
	MissingThreshold float64
	// MinMonths is the fewest distinct months a year needs to be usable.
	MinMonths int
}

func DefaultOptions() Options {
	return Options{MissingThreshold: DefaultMissingThreshold, MinMonths: DefaultMinMonths}
}

type monthKey struct {
	station   models.StationMeta
	yearMonth string
}

type yearKey struct {
	station models.StationMeta
	year    int
}

type tally struct {
	rain    float64
	days    int
	missing int
	months  map[int]bool
}

func (t *tally) add(rec models.DailyRecord) {
	t.days++
	if rec.Rain.Valid {
		t.rain += rec.Rain.Float64
	} else {
		t.missing++
	}
	if t.months != nil {
		t.months[int(rec.Date.Month())] = true
	}
}

func (t *tally) pctMissing() float64 {
	return round3(float64(t.missing) / float64(t.days))
}

// Monthly summarises rainfall per station and calendar month.
func Monthly(records []models.DailyRecord, opts Options) []models.MonthlySummary {
	groups := make(map[monthKey]*tally)
	for _, rec := range records {
		k := monthKey{station: rec.Station, yearMonth: rec.Date.Format("2006-01")}
		t, ok := groups[k]
		if !ok {
			t = &tally{}
			groups[k] = t
		}
		t.add(rec)
	}

	out := make([]models.MonthlySummary, 0, len(groups))
	flagged := 0
	for k, t := range groups {
		pct := t.pctMissing()
		row := models.MonthlySummary{
			Station:         k.station,
			YearMonth:       k.yearMonth,
			MonthlyRainfall: t.rain,
			DaysCount:       t.days,
			MissingCount:    t.missing,
			PctMissing:      pct,
			IncompleteMonth: pct > opts.MissingThreshold,
		}
		if row.IncompleteMonth {
			flagged++
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := CompareStations(out[i].Station, out[j].Station); c != 0 {
			return c < 0
		}
		return out[i].YearMonth < out[j].YearMonth
	})

	log.Printf("summary: %d monthly periods, %d incomplete", len(out), flagged)
	metrics.PeriodsFlagged.WithLabelValues("month").Add(float64(flagged))
	return out
}

// Annual summarises rainfall per station and calendar year. A year is
// flagged when either its missing fraction exceeds the threshold or it has
// fewer than MinMonths distinct months.
func Annual(records []models.DailyRecord, opts Options) []models.AnnualSummary {
	groups := make(map[yearKey]*tally)
	for _, rec := range records {
		k := yearKey{station: rec.Station, year: rec.Date.Year()}
		t, ok := groups[k]
		if !ok {
			t = &tally{months: make(map[int]bool)}
			groups[k] = t
		}
		t.add(rec)
	}

	out := make([]models.AnnualSummary, 0, len(groups))
	flagged := 0
	for k, t := range groups {
		pct := t.pctMissing()
		observed := len(t.months)
		row := models.AnnualSummary{
			Station:            k.station,
			Year:               k.year,
			AnnualRainfall:     t.rain,
			DaysCount:          t.days,
			MissingCount:       t.missing,
			PctMissing:         pct,
			MonthsObserved:     observed,
			MissingMonths:      monthsPerYear - observed,
			IncompleteYear:     pct > opts.MissingThreshold,
			InsufficientMonths: observed < opts.MinMonths,
		}
		row.Flagged = row.IncompleteYear || row.InsufficientMonths
		if row.Flagged {
			flagged++
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := CompareStations(out[i].Station, out[j].Station); c != 0 {
			return c < 0
		}
		return out[i].Year < out[j].Year
	})

	log.Printf("summary: %d annual periods, %d flagged", len(out), flagged)
	metrics.PeriodsFlagged.WithLabelValues("year").Add(float64(flagged))
	return out
}

// round3 rounds half to even, so 1/16 missing becomes 0.062.
func round3(v float64) float64 {
	return math.RoundToEven(v*1000) / 1000
}

// CompareStations orders stations by number (numerically when both numbers
// parse), then by the remaining metadata so the order is total.
func CompareStations(a, b models.StationMeta) int {
	if c := compareNumeric(a.Number, b.Number); c != 0 {
		return c
	}
	for _, pair := range [][2]string{
		{a.Name, b.Name},
		{a.Height, b.Height},
		{a.Easting, b.Easting},
		{a.Northing, b.Northing},
		{a.Latitude, b.Latitude},
		{a.Longitude, b.Longitude},
	} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func compareNumeric(a, b string) int {
	if a == b {
		return 0
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil && fa != fb {
		if fa < fb {
			return -1
		}
		return 1
	}
	if a < b {
		return -1
	}
	return 1
}
