package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lox/bogwatch/internal/models"
)

var indexColumnNames = []string{"ndvi", "ndvi_use", "ndvi_harmonized"}

// Plausible median range for a vegetation index column when no column is
// named after one.
const (
	plausibleIndexMin = 0.2
	plausibleIndexMax = 0.9
)

// LoadVegetation reads a per-scene vegetation index table. It requires year and
// season columns; the index column is detected by name or, failing that, by
// the distribution of its values.
func LoadVegetation(path string) ([]models.VegetationObservation, error) {
	t, err := readTable(path, "vegetation")
	if err != nil {
		return nil, err
	}
	idx := columnIndex(t.header)

	yearCol, ok := idx["year"]
	if !ok {
		return nil, fmt.Errorf("vegetation CSV must contain a 'year' column")
	}
	seasonCol, ok := idx["season"]
	if !ok {
		return nil, fmt.Errorf("vegetation CSV must contain a 'season' column")
	}

	indexCol, err := detectIndexColumn(t, yearCol, seasonCol)
	if err != nil {
		return nil, err
	}

	waterCol := -1
	if i, ok := idx["NDWI"]; ok && i != indexCol {
		waterCol = i
	}

	var out []models.VegetationObservation
	for _, row := range t.rows {
		year, ok := parseYear(cell(row, yearCol))
		if !ok {
			continue
		}
		season := strings.ToUpper(strings.TrimSpace(cell(row, seasonCol)))
		if season == "" {
			continue
		}
		v := parseNumber(cell(row, indexCol))
		if !v.Valid {
			continue
		}
		obs := models.VegetationObservation{Year: year, Season: season, Index: v.Float64}
		if waterCol >= 0 {
			obs.Water = parseNumber(cell(row, waterCol))
		}
		out = append(out, obs)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func detectIndexColumn(t *table, yearCol, seasonCol int) (int, error) {
	lower := make(map[string]int, len(t.header))
	for i, h := range t.header {
		if _, ok := lower[strings.ToLower(h)]; !ok {
			lower[strings.ToLower(h)] = i
		}
	}
	for _, name := range indexColumnNames {
		if i, ok := lower[name]; ok {
			return i, nil
		}
	}

	type candidate struct {
		col    int
		median float64
	}
	var numeric []candidate
	for i := range t.header {
		if i == yearCol || i == seasonCol {
			continue
		}
		var vals []float64
		for _, s := range t.column(i) {
			if v := parseNumber(s); v.Valid {
				vals = append(vals, v.Float64)
			}
		}
		if len(vals) == 0 {
			continue
		}
		numeric = append(numeric, candidate{col: i, median: median(vals)})
	}
	if len(numeric) == 0 {
		return 0, fmt.Errorf("vegetation CSV has no numeric index column")
	}

	sort.SliceStable(numeric, func(i, j int) bool { return numeric[i].median > numeric[j].median })
	for _, c := range numeric {
		if c.median >= plausibleIndexMin && c.median <= plausibleIndexMax {
			return c.col, nil
		}
	}
	return numeric[0].col, nil
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// SeriesOptions selects one season out of a vegetation table.
type SeriesOptions struct {
	Season    string
	StartYear int
	MinIndex  float64
}

func DefaultSeriesOptions(season string) SeriesOptions {
	return SeriesOptions{Season: season, StartYear: 1984, MinIndex: 0.25}
}

// BuildSeries returns one index value per year for the season, the last
// observation of a year winning, restricted to years from StartYear and
// values of at least MinIndex.
func BuildSeries(obs []models.VegetationObservation, opts SeriesOptions) []models.YearValue {
	season := strings.ToUpper(opts.Season)

	var filtered []models.VegetationObservation
	for _, o := range obs {
		if o.Season == season {
			filtered = append(filtered, o)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Year < filtered[j].Year })

	var series []models.YearValue
	for i, o := range filtered {
		if i+1 < len(filtered) && filtered[i+1].Year == o.Year {
			continue
		}
		if o.Year < opts.StartYear || o.Index < opts.MinIndex {
			continue
		}
		series = append(series, models.YearValue{Year: o.Year, Value: o.Index})
	}
	return series
}
