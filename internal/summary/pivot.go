package summary

import (
	"database/sql"
	"sort"
	"strconv"

	"github.com/lox/bogwatch/internal/models"
)

type cellKey struct {
	station models.StationMeta
	period  string
}

// PivotMonthly reshapes monthly summaries into one row per station with one
// column per YearMonth.
func PivotMonthly(rows []models.MonthlySummary) models.WideTable {
	values := make([]periodValue, len(rows))
	for i, r := range rows {
		values[i] = periodValue{station: r.Station, period: r.YearMonth, value: r.MonthlyRainfall}
	}
	return pivot(values, func(a, b string) bool { return a < b })
}

// PivotAnnual reshapes annual summaries into one row per station with one
// column per year, years ordered numerically.
func PivotAnnual(rows []models.AnnualSummary) models.WideTable {
	values := make([]periodValue, len(rows))
	for i, r := range rows {
		values[i] = periodValue{station: r.Station, period: strconv.Itoa(r.Year), value: r.AnnualRainfall}
	}
	return pivot(values, func(a, b string) bool {
		ya, _ := strconv.Atoi(a)
		yb, _ := strconv.Atoi(b)
		return ya < yb
	})
}

type periodValue struct {
	station models.StationMeta
	period  string
	value   float64
}

func pivot(values []periodValue, less func(a, b string) bool) models.WideTable {
	cells := make(map[cellKey]float64)
	seenPeriod := make(map[string]bool)
	seenStation := make(map[models.StationMeta]bool)
	var periods []string
	var stations []models.StationMeta

	for _, v := range values {
		// duplicates for the same station and period are summed
		cells[cellKey{v.station, v.period}] += v.value
		if !seenPeriod[v.period] {
			seenPeriod[v.period] = true
			periods = append(periods, v.period)
		}
		if !seenStation[v.station] {
			seenStation[v.station] = true
			stations = append(stations, v.station)
		}
	}

	sort.Slice(periods, func(i, j int) bool { return less(periods[i], periods[j]) })
	sort.Slice(stations, func(i, j int) bool { return CompareStations(stations[i], stations[j]) < 0 })

	table := models.WideTable{Periods: periods, Rows: make([]models.WideRow, 0, len(stations))}
	for _, st := range stations {
		row := models.WideRow{Station: st, Values: make([]sql.NullFloat64, len(periods))}
		for i, p := range periods {
			if v, ok := cells[cellKey{st, p}]; ok {
				row.Values[i] = sql.NullFloat64{Float64: v, Valid: true}
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
