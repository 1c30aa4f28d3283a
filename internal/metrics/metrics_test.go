package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	FilesLoaded.Inc()
	PeriodsFlagged.WithLabelValues("month").Add(2)
	OutputsWritten.WithLabelValues("yes").Inc()

	path := filepath.Join(t.TempDir(), "bogwatch.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	for _, name := range []string{
		"bogwatch_station_files_loaded_total",
		`bogwatch_periods_flagged_total{period="month"}`,
		`bogwatch_outputs_written_total{fallback="yes"}`,
	} {
		assert.True(t, strings.Contains(text, name), "missing %s", name)
	}
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "bogwatch.prom"))
	assert.Error(t, err)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RowsDroppedDate)
	RowsDroppedDate.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(RowsDroppedDate)-before)
}
