// Package analysis relates a yearly vegetation index series to annual rainfall:
// lagged correlations and an ordinary least squares fit.
package analysis

import (
	"errors"
	"log"
	"sort"

	"github.com/lox/bogwatch/internal/models"
)

// MinPairs is the fewest paired years a correlation or regression needs.
const MinPairs = 3

var ErrInsufficientPairs = errors.New("fewer than 3 paired years")

// DefaultLags pair a vegetation year with rainfall up to two years either side.
var DefaultLags = []int{-2, -1, 0, 1, 2}

// Pair is a vegetation value and the rainfall it is compared against.
type Pair struct {
	Year     int // vegetation year
	RainYear int
	Index    float64
	Rain     float64
}

// Pairs matches each vegetation year t with rainfall of year t+lag. A positive
// lag compares vegetation against rainfall measured later. Only years present
// in both series take part, so a lag never reaches rainfall outside the
// overlapping years and edge years drop out as the lag grows.
func Pairs(series []models.YearValue, rain []models.RainfallYear, lag int) []Pair {
	mm := make(map[int]float64, len(rain))
	for _, r := range rain {
		mm[r.Year] = r.Millimeters
	}
	merged := make(map[int]bool, len(series))
	for _, v := range series {
		if _, ok := mm[v.Year]; ok {
			merged[v.Year] = true
		}
	}

	var out []Pair
	for _, v := range series {
		if !merged[v.Year] || !merged[v.Year+lag] {
			continue
		}
		out = append(out, Pair{Year: v.Year, RainYear: v.Year + lag, Index: v.Value, Rain: mm[v.Year+lag]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func split(pairs []Pair) (index, rain []float64) {
	index = make([]float64, len(pairs))
	rain = make([]float64, len(pairs))
	for i, p := range pairs {
		index[i] = p.Index
		rain[i] = p.Rain
	}
	return index, rain
}

// SkippedLag records a lag that produced too few pairs to correlate.
type SkippedLag struct {
	Season string
	Lag    int
	Pairs  int
}

type LagReport struct {
	Rows    []models.LagCorrelation
	Skipped []SkippedLag
}

// LaggedCorrelations computes Pearson, Spearman and Kendall statistics between
// a season's vegetation series and rainfall at each distinct lag.
func LaggedCorrelations(series []models.YearValue, rain []models.RainfallYear, season string, lags []int) LagReport {
	var report LagReport
	seen := make(map[int]bool, len(lags))
	for _, lag := range lags {
		if seen[lag] {
			continue
		}
		seen[lag] = true

		pairs := Pairs(series, rain, lag)
		if len(pairs) < MinPairs {
			log.Printf("analysis: %s lag %d: only %d paired years, skipping", season, lag, len(pairs))
			report.Skipped = append(report.Skipped, SkippedLag{Season: season, Lag: lag, Pairs: len(pairs)})
			continue
		}

		index, mm := split(pairs)
		pearson := Pearson(index, mm)
		spearman := Spearman(index, mm)
		kendall := Kendall(index, mm)
		report.Rows = append(report.Rows, models.LagCorrelation{
			Season:     season,
			LagYears:   lag,
			N:          len(pairs),
			PearsonR:   pearson.Value,
			PearsonP:   pearson.P,
			SpearmanR:  spearman.Value,
			SpearmanP:  spearman.P,
			KendallTau: kendall.Value,
			KendallP:   kendall.P,
		})
	}

	SortCorrelations(report.Rows)
	return report
}

// SortCorrelations orders rows by season then lag.
func SortCorrelations(rows []models.LagCorrelation) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Season != rows[j].Season {
			return rows[i].Season < rows[j].Season
		}
		return rows[i].LagYears < rows[j].LagYears
	})
}
