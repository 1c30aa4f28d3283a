package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lox/bogwatch/internal/models"
)

// Candidate value columns for annual rainfall tables, in preference order.
var rainfallValueColumns = []string{"Value_mm", "Value", "Mean_mm", "MEAN", "Mean", "mean"}

// LoadRainfall reads an annual rainfall table with a Year column and one of
// the known value columns. Duplicate years keep the last row.
func LoadRainfall(path string) ([]models.RainfallYear, error) {
	t, err := readTable(path, "rainfall")
	if err != nil {
		return nil, err
	}

	yearCol := -1
	for i, h := range t.header {
		if strings.ToLower(strings.TrimSpace(h)) == "year" {
			yearCol = i
			break
		}
	}
	if yearCol < 0 {
		return nil, fmt.Errorf("rainfall CSV must have a 'Year' column")
	}

	idx := columnIndex(t.header)
	valueCol := -1
	for _, name := range rainfallValueColumns {
		if i, ok := idx[name]; ok {
			valueCol = i
			break
		}
	}
	if valueCol < 0 {
		return nil, fmt.Errorf("rainfall CSV missing a rainfall value column (want one of %s)",
			strings.Join(rainfallValueColumns, ", "))
	}

	var rows []models.RainfallYear
	for _, row := range t.rows {
		year, ok := parseYear(cell(row, yearCol))
		if !ok {
			continue
		}
		mm := parseNumber(cell(row, valueCol))
		if !mm.Valid {
			continue
		}
		rows = append(rows, models.RainfallYear{Year: year, Millimeters: mm.Float64})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Year < rows[j].Year })

	var out []models.RainfallYear
	for i, r := range rows {
		if i+1 < len(rows) && rows[i+1].Year == r.Year {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
