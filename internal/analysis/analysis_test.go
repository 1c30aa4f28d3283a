package analysis

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bogwatch/internal/models"
)

func yearly(start int, values ...float64) []models.YearValue {
	out := make([]models.YearValue, len(values))
	for i, v := range values {
		out[i] = models.YearValue{Year: start + i, Value: v}
	}
	return out
}

func rainfall(start int, values ...float64) []models.RainfallYear {
	out := make([]models.RainfallYear, len(values))
	for i, v := range values {
		out[i] = models.RainfallYear{Year: start + i, Millimeters: v}
	}
	return out
}

func TestPairs(t *testing.T) {
	series := yearly(2000, 0.5, 0.6, 0.7)
	rain := rainfall(1999, 900, 1000, 1100, 1200)

	tests := []struct {
		name     string
		lag      int
		wantRain []float64
		wantYear []int
	}{
		{name: "same year", lag: 0, wantRain: []float64{1000, 1100, 1200}, wantYear: []int{2000, 2001, 2002}},
		{name: "later rainfall", lag: 1, wantRain: []float64{1100, 1200}, wantYear: []int{2001, 2002}},
		{name: "earlier rainfall", lag: -1, wantRain: []float64{1000, 1100}, wantYear: []int{2000, 2001}},
		{name: "no overlap", lag: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := Pairs(series, rain, tt.lag)
			var gotRain []float64
			var gotYear []int
			for _, p := range pairs {
				gotRain = append(gotRain, p.Rain)
				gotYear = append(gotYear, p.RainYear)
				assert.Equal(t, p.Year+tt.lag, p.RainYear)
			}
			assert.Equal(t, tt.wantRain, gotRain)
			assert.Equal(t, tt.wantYear, gotYear)
		})
	}
}

func TestPairs_EdgeYearsDropOut(t *testing.T) {
	series := yearly(2000, 0.4, 0.5, 0.45, 0.6, 0.55, 0.52, 0.48, 0.61, 0.58, 0.5)
	var mm []float64
	for y := 1990; y <= 2020; y++ {
		mm = append(mm, float64(800+y%7*50))
	}
	rain := rainfall(1990, mm...)

	tests := []struct {
		lag       int
		wantN     int
		wantFirst int
		wantLast  int
	}{
		{lag: -2, wantN: 8, wantFirst: 2002, wantLast: 2009},
		{lag: -1, wantN: 9, wantFirst: 2001, wantLast: 2009},
		{lag: 0, wantN: 10, wantFirst: 2000, wantLast: 2009},
		{lag: 1, wantN: 9, wantFirst: 2000, wantLast: 2008},
		{lag: 2, wantN: 8, wantFirst: 2000, wantLast: 2007},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("lag %d", tt.lag), func(t *testing.T) {
			pairs := Pairs(series, rain, tt.lag)
			require.Len(t, pairs, tt.wantN)
			assert.Equal(t, tt.wantFirst, pairs[0].Year)
			assert.Equal(t, tt.wantLast, pairs[len(pairs)-1].Year)
			for _, p := range pairs {
				assert.GreaterOrEqual(t, p.RainYear, 2000)
				assert.LessOrEqual(t, p.RainYear, 2009)
			}
		})
	}
}

func TestPairs_GapInVegetation(t *testing.T) {
	series := []models.YearValue{{Year: 2000, Value: 0.4}, {Year: 2001, Value: 0.5}, {Year: 2003, Value: 0.6}}
	rain := rainfall(1999, 900, 1000, 1100, 1200, 1300)

	pairs := Pairs(series, rain, 1)
	require.Len(t, pairs, 1)
	assert.Equal(t, 2000, pairs[0].Year)
	assert.Equal(t, 2001, pairs[0].RainYear)
}

func TestLaggedCorrelations_PerfectLinear(t *testing.T) {
	index := []float64{0.31, 0.45, 0.52, 0.38, 0.61, 0.7, 0.42, 0.55, 0.66, 0.48}
	series := yearly(1990, index...)
	mm := make([]float64, len(index))
	for i, v := range index {
		mm[i] = 2 * v
	}
	rain := rainfall(1990, mm...)

	report := LaggedCorrelations(series, rain, "SUMMER", []int{0})
	require.Len(t, report.Rows, 1)
	assert.Empty(t, report.Skipped)

	row := report.Rows[0]
	assert.Equal(t, 10, row.N)
	assert.InDelta(t, 1.0, row.PearsonR, 1e-9)
	assert.Less(t, row.PearsonP, 1e-6)
	assert.InDelta(t, 1.0, row.SpearmanR, 1e-9)
	assert.InDelta(t, 1.0, row.KendallTau, 1e-9)
	// Exact two-sided p for a perfect ranking of 10: 2/10!
	assert.InDelta(t, 2.0/3628800, row.KendallP, 1e-12)
}

func TestLaggedCorrelations_SkipsShortLags(t *testing.T) {
	series := yearly(2000, 0.4, 0.5, 0.45, 0.6, 0.55)
	rain := rainfall(2000, 1000, 1200, 1100, 1300, 1250)

	report := LaggedCorrelations(series, rain, "WINTER", []int{3, 0, -2})
	require.Len(t, report.Rows, 2)
	assert.Equal(t, -2, report.Rows[0].LagYears)
	assert.Equal(t, 3, report.Rows[0].N)
	assert.Equal(t, 0, report.Rows[1].LagYears)
	assert.Equal(t, 5, report.Rows[1].N)

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, SkippedLag{Season: "WINTER", Lag: 3, Pairs: 2}, report.Skipped[0])

	empty := LaggedCorrelations(nil, rain, "SUMMER", DefaultLags)
	assert.Empty(t, empty.Rows)
	assert.Len(t, empty.Skipped, len(DefaultLags))
}

func TestLaggedCorrelations_RepeatedLags(t *testing.T) {
	series := yearly(2000, 0.4, 0.5, 0.45, 0.6, 0.55)
	rain := rainfall(2000, 1000, 1200, 1100, 1300, 1250)

	report := LaggedCorrelations(series, rain, "SUMMER", []int{0, 1, 0, 3, 3})
	require.Len(t, report.Rows, 2)
	assert.Equal(t, 0, report.Rows[0].LagYears)
	assert.Equal(t, 1, report.Rows[1].LagYears)
	assert.Len(t, report.Skipped, 1)
}

func TestSortCorrelations(t *testing.T) {
	rows := []models.LagCorrelation{
		{Season: "WINTER", LagYears: 1},
		{Season: "SUMMER", LagYears: 2},
		{Season: "WINTER", LagYears: -1},
		{Season: "SUMMER", LagYears: -2},
	}
	SortCorrelations(rows)

	var got []string
	for _, r := range rows {
		got = append(got, r.Season)
	}
	assert.Equal(t, []string{"SUMMER", "SUMMER", "WINTER", "WINTER"}, got)
	assert.Equal(t, -2, rows[0].LagYears)
	assert.Equal(t, -1, rows[2].LagYears)
}

func TestSpearman_Ties(t *testing.T) {
	x := []float64{1, 2, 2, 3}
	y := []float64{1, 3, 2, 4}

	got := Spearman(x, y)
	assert.InDelta(t, 3/math.Sqrt(10), got.Value, 1e-12)
	assert.Greater(t, got.P, 0.0)
	assert.Less(t, got.P, 0.1)
}

func TestKendall(t *testing.T) {
	tests := []struct {
		name string
		x, y []float64
		tau  float64
		p    float64
	}{
		{
			name: "one swap exact",
			x:    []float64{1, 2, 3, 4, 5},
			y:    []float64{1, 2, 3, 5, 4},
			tau:  0.8,
			p:    10.0 / 120,
		},
		{
			name: "perfect exact",
			x:    []float64{1, 2, 3, 4, 5},
			y:    []float64{5, 4, 3, 2, 1},
			tau:  -1,
			p:    2.0 / 120,
		},
		{
			name: "tie in x uses tau-b",
			x:    []float64{1, 2, 2, 3},
			y:    []float64{1, 3, 2, 4},
			tau:  5 / math.Sqrt(30),
			p:    math.NaN(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Kendall(tt.x, tt.y)
			assert.InDelta(t, tt.tau, got.Value, 1e-12)
			if math.IsNaN(tt.p) {
				assert.Greater(t, got.P, 0.0)
				assert.Less(t, got.P, 1.0)
				return
			}
			assert.InDelta(t, tt.p, got.P, 1e-12)
		})
	}
}

func TestKendall_Degenerate(t *testing.T) {
	got := Kendall([]float64{1}, []float64{2})
	assert.True(t, math.IsNaN(got.Value))

	got = Kendall([]float64{3, 3, 3}, []float64{1, 2, 3})
	assert.True(t, math.IsNaN(got.Value))
	assert.True(t, math.IsNaN(got.P))
}

func TestKendallExactP_Symmetric(t *testing.T) {
	// Inversion counts of permutations of 4: 1 3 5 6 5 3 1 over 24.
	assert.InDelta(t, 2*4.0/24, kendallExactP(4, 1), 1e-12)
	assert.InDelta(t, 2*9.0/24, kendallExactP(4, 2), 1e-12)
	assert.Equal(t, 1.0, kendallExactP(4, 3))
}

func TestPearsonP(t *testing.T) {
	// r = 0.5 over 10 pairs: t = 1.633, df = 8.
	assert.InDelta(t, 0.1411, tTestP(0.5, 10), 1e-4)
	assert.Equal(t, 0.0, tTestP(1, 5))
	assert.True(t, math.IsNaN(tTestP(0.5, 2)))
}

func TestRegress(t *testing.T) {
	series := yearly(2000, 3, 5, 7, 9, 11)
	rain := rainfall(2000, 1, 2, 3, 4, 5)

	reg, pairs, err := Regress(series, rain, 0)
	require.NoError(t, err)
	assert.Len(t, pairs, 5)
	assert.Equal(t, 5, reg.N)
	assert.InDelta(t, 2, reg.Slope, 1e-9)
	assert.InDelta(t, 1, reg.Intercept, 1e-9)
	assert.InDelta(t, 1, reg.R, 1e-9)
	assert.InDelta(t, 0, reg.P, 1e-9)
	assert.InDelta(t, 0, reg.StdErr, 1e-6)
}

func TestRegress_Noisy(t *testing.T) {
	series := yearly(2000, 2, 4, 5, 4, 5)
	rain := rainfall(2000, 1, 2, 3, 4, 5)

	reg, _, err := Regress(series, rain, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, reg.Slope, 1e-9)
	assert.InDelta(t, 2.2, reg.Intercept, 1e-9)
	// Residual sum of squares 2.4 over 3 dof, sxx 10.
	assert.InDelta(t, math.Sqrt(0.8/10), reg.StdErr, 1e-9)
}

func TestRegress_InsufficientPairs(t *testing.T) {
	series := yearly(2000, 0.5, 0.6)
	rain := rainfall(2000, 900, 1000)

	_, pairs, err := Regress(series, rain, 0)
	assert.True(t, errors.Is(err, ErrInsufficientPairs))
	assert.Len(t, pairs, 2)
}
