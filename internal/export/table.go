// Package export renders summaries as tables and saves them without ever
// losing a run to a locked output file.
package export

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/lox/bogwatch/internal/ingest"
	"github.com/lox/bogwatch/internal/models"
)

// Table is a header plus typed rows. Cells hold string, int, float64, bool or
// sql.NullFloat64 values.
type Table struct {
	Columns []string
	Rows    [][]any
}

func metaCells(st models.StationMeta) []any {
	return []any{st.Number, st.Name, st.Height, st.Easting, st.Northing, st.Latitude, st.Longitude}
}

func withMeta(extra ...string) []string {
	return append(append([]string{}, ingest.MetaColumns...), extra...)
}

func MonthlyTable(rows []models.MonthlySummary) Table {
	t := Table{Columns: withMeta(
		"YearMonth", "MonthlyRainfall", "DaysCount", "MissingCount", "PctMissing", "IncompleteMonth",
	)}
	for _, r := range rows {
		t.Rows = append(t.Rows, append(metaCells(r.Station),
			r.YearMonth, r.MonthlyRainfall, r.DaysCount, r.MissingCount, r.PctMissing, r.IncompleteMonth,
		))
	}
	return t
}

func AnnualTable(rows []models.AnnualSummary) Table {
	t := Table{Columns: withMeta(
		"Year", "AnnualRainfall", "DaysCount", "MissingCount", "PctMissing",
		"MonthsObserved", "MissingMonths", "IncompleteYear", "InsufficientMonths", "Flagged",
	)}
	for _, r := range rows {
		t.Rows = append(t.Rows, append(metaCells(r.Station),
			r.Year, r.AnnualRainfall, r.DaysCount, r.MissingCount, r.PctMissing,
			r.MonthsObserved, r.MissingMonths, r.IncompleteYear, r.InsufficientMonths, r.Flagged,
		))
	}
	return t
}

func WideTable(w models.WideTable) Table {
	t := Table{Columns: withMeta(w.Periods...)}
	for _, r := range w.Rows {
		row := metaCells(r.Station)
		for _, v := range r.Values {
			row = append(row, v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func CorrelationTable(rows []models.LagCorrelation) Table {
	t := Table{Columns: []string{
		"season", "lag_years", "n", "pearson_r", "pearson_p",
		"spearman_r", "spearman_p", "kendall_tau", "kendall_p",
	}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{
			r.Season, r.LagYears, r.N, r.PearsonR, r.PearsonP,
			r.SpearmanR, r.SpearmanP, r.KendallTau, r.KendallP,
		})
	}
	return t
}

// WriteCSV writes t with a header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		record = record[:0]
		for _, c := range row {
			record = append(record, FormatCell(c))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders a cell for CSV. Floats keep a decimal point, booleans
// are True/False, and missing or NaN values are empty.
func FormatCell(c any) string {
	switch v := c.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return formatFloat(v)
	case bool:
		if v {
			return "True"
		}
		return "False"
	case sql.NullFloat64:
		if !v.Valid {
			return ""
		}
		return formatFloat(v.Float64)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") && !math.IsInf(v, 0) {
		s += ".0"
	}
	return s
}

// Preview renders the first n rows as aligned text for terminal output.
func Preview(t Table, n int) string {
	rows := [][]string{t.Columns}
	for i, r := range t.Rows {
		if i == n {
			break
		}
		cells := make([]string, len(r))
		for j, c := range r {
			if f, ok := c.(float64); ok {
				cells[j] = strconv.FormatFloat(f, 'f', 3, 64)
				continue
			}
			cells[j] = FormatCell(c)
		}
		rows = append(rows, cells)
	}

	widths := make([]int, len(t.Columns))
	for _, r := range rows {
		for j, c := range r {
			if j < len(widths) && len(c) > widths[j] {
				widths[j] = len(c)
			}
		}
	}

	var b strings.Builder
	for _, r := range rows {
		for j, c := range r {
			if j > 0 {
				b.WriteString("  ")
			}
			if j < len(widths) {
				fmt.Fprintf(&b, "%*s", widths[j], c)
			} else {
				b.WriteString(c)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
