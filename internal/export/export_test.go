package export

import (
	"bytes"
	"database/sql"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lox/bogwatch/internal/metrics"
	"github.com/lox/bogwatch/internal/models"
)

var clara = models.StationMeta{
	Number: "3723", Name: "Clara Bog", Height: "70", Easting: "222000",
	Northing: "230000", Latitude: "53.32", Longitude: "-7.62",
}

func testSaver() *Saver {
	return &Saver{
		Retries: 0,
		Wait:    0,
		Now:     func() time.Time { return time.Date(2025, 1, 31, 14, 25, 1, 0, time.UTC) },
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "string", in: "Clara Bog", want: "Clara Bog"},
		{name: "int", in: 31, want: "31"},
		{name: "whole float", in: 81.0, want: "81.0"},
		{name: "fraction", in: 0.258, want: "0.258"},
		{name: "negative whole", in: -3.0, want: "-3.0"},
		{name: "nan", in: math.NaN(), want: ""},
		{name: "true", in: true, want: "True"},
		{name: "false", in: false, want: "False"},
		{name: "valid null float", in: sql.NullFloat64{Float64: 12, Valid: true}, want: "12.0"},
		{name: "invalid null float", in: sql.NullFloat64{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCell(tt.in))
		})
	}
}

func TestWriteCSV_Monthly(t *testing.T) {
	rows := []models.MonthlySummary{
		{Station: clara, YearMonth: "2021-02", MonthlyRainfall: 21, DaysCount: 28, MissingCount: 7, PctMissing: 0.25, IncompleteMonth: true},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, MonthlyTable(rows)))

	want := "Station Number,Station Name,Height,Easting,Northing,Latitude,Longitude,YearMonth,MonthlyRainfall,DaysCount,MissingCount,PctMissing,IncompleteMonth\n" +
		"3723,Clara Bog,70,222000,230000,53.32,-7.62,2021-02,21.0,28,7,0.25,True\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Wide(t *testing.T) {
	wide := models.WideTable{
		Periods: []string{"2020", "2021"},
		Rows: []models.WideRow{
			{Station: clara, Values: []sql.NullFloat64{{}, {Float64: 812.5, Valid: true}}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, WideTable(wide)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], ",Longitude,2020,2021"))
	assert.True(t, strings.HasSuffix(lines[1], ",-7.62,,812.5"))
}

func TestCorrelationTable_NaNBlank(t *testing.T) {
	rows := []models.LagCorrelation{{
		Season: "SUMMER", LagYears: -1, N: 3,
		PearsonR: 0.5, PearsonP: 0.667, SpearmanR: math.NaN(), SpearmanP: math.NaN(),
		KendallTau: 1, KendallP: 0.333,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, CorrelationTable(rows)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "season,lag_years,n,pearson_r,pearson_p,spearman_r,spearman_p,kendall_tau,kendall_p", lines[0])
	assert.Equal(t, "SUMMER,-1,3,0.5,0.667,,,1.0,0.333", lines[1])
}

func TestPreview(t *testing.T) {
	table := Table{
		Columns: []string{"a", "value"},
		Rows:    [][]any{{"x", 1.23456}, {"y", 2.0}, {"z", 3.0}},
	}
	got := Preview(table, 2)
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a  value", lines[0])
	assert.Equal(t, "x  1.235", lines[1])
	assert.Equal(t, "y  2.000", lines[2])
}

func TestFallbackPath(t *testing.T) {
	at := time.Date(2025, 1, 31, 14, 25, 1, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "summary_20250131-142501.csv"), FallbackPath(filepath.Join("out", "summary.csv"), at))
	assert.Equal(t, "plot_20250131-142501.png", FallbackPath("plot.png", at))
	assert.Equal(t, "noext_20250131-142501", FallbackPath("noext", at))
}

func TestSaveCSV_WritesTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "monthly.csv")
	before := testutil.ToFloat64(metrics.OutputsWritten.WithLabelValues("no"))

	res, err := testSaver().SaveCSV(path, Table{Columns: []string{"a"}, Rows: [][]any{{1}}})
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.False(t, res.Fallback)
	assert.NoError(t, res.Cause)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(data))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OutputsWritten.WithLabelValues("no"))-before)
}

func TestSaveCSV_FallsBackWhenTargetUnwritable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monthly.csv")
	// A directory at the target path cannot be overwritten by a file.
	require.NoError(t, os.Mkdir(path, 0755))
	before := testutil.ToFloat64(metrics.OutputsWritten.WithLabelValues("yes"))

	table := Table{Columns: []string{"station", "rain"}, Rows: [][]any{{"3723", 12.5}}}
	res, err := testSaver().SaveCSV(path, table)
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Error(t, res.Cause)
	assert.Equal(t, filepath.Join(dir, "monthly_20250131-142501.csv"), res.Path)

	var want bytes.Buffer
	require.NoError(t, WriteCSV(&want, table))
	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(got))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OutputsWritten.WithLabelValues("yes"))-before)
}

func TestSave_RenderErrorWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	_, err := testSaver().Save(path, func(io.Writer) error { return errors.New("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSave_BothPathsFail(t *testing.T) {
	dir := t.TempDir()
	s := testSaver()
	path := filepath.Join(dir, "out.csv")
	require.NoError(t, os.Mkdir(path, 0755))
	require.NoError(t, os.Mkdir(FallbackPath(path, s.Now()), 0755))

	res, err := s.SaveCSV(path, Table{Columns: []string{"a"}})
	require.Error(t, err)
	assert.Error(t, res.Cause)
	assert.Empty(t, res.Path)
}

func TestSaveWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	monthly := MonthlyTable([]models.MonthlySummary{
		{Station: clara, YearMonth: "2021-01", MonthlyRainfall: 81.2, DaysCount: 31},
	})
	wide := WideTable(models.WideTable{
		Periods: []string{"2021-01", "2021-02"},
		Rows:    []models.WideRow{{Station: clara, Values: []sql.NullFloat64{{Float64: 81.2, Valid: true}, {}}}},
	})

	res, err := testSaver().SaveWorkbook(path, []Sheet{
		{Name: "monthly", Table: monthly},
		{Name: "monthly_wide", Table: wide},
	})
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"monthly", "monthly_wide"}, f.GetSheetList())

	rows, err := f.GetRows("monthly")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, monthly.Columns, rows[0])
	assert.Equal(t, "Clara Bog", rows[1][1])
	assert.Equal(t, "2021-01", rows[1][7])
	assert.Equal(t, "81.2", rows[1][8])

	rows, err = f.GetRows("monthly_wide")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "81.2", rows[1][7])
	if len(rows[1]) > 8 {
		assert.Empty(t, rows[1][8])
	}
}

func TestWriteWorkbook_NoSheets(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteWorkbook(&buf, nil))
}
