package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bogwatch_station_files_loaded_total",
			Help: "Station CSV files that passed schema validation",
		},
	)

	FilesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bogwatch_station_files_skipped_total",
			Help: "Station CSV files skipped because they failed validation",
		},
	)

	RowsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bogwatch_station_rows_loaded_total",
			Help: "Daily station rows kept after date coercion",
		},
	)

	RowsDroppedDate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bogwatch_station_rows_dropped_date_total",
			Help: "Daily station rows dropped because the date did not parse",
		},
	)

	RainMissing = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bogwatch_station_rain_missing_total",
			Help: "Daily station rows kept with a missing rain value",
		},
	)

	PeriodsFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bogwatch_periods_flagged_total",
			Help: "Summary periods flagged by quality checks",
		},
		[]string{"period"},
	)

	OutputsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bogwatch_outputs_written_total",
			Help: "Output files written, by whether the fallback name was used",
		},
		[]string{"fallback"},
	)
)

// WriteTextfile writes every registered metric to path in the text exposition
// format read by the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
