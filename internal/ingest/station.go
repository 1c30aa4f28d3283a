package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/bogwatch/internal/metrics"
	"github.com/lox/bogwatch/internal/models"
)

var (
	ErrNoCSVFiles   = errors.New("no CSV files found in the folder")
	ErrNoValidFiles = errors.New("no valid CSVs after validation")
)

// MissingColumnsError reports a station file without the required schema.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns: %s", strings.Join(e.Columns, ", "))
}

// FileReport describes what happened to one station file during loading.
type FileReport struct {
	Name         string
	Rows         int // rows kept
	DroppedDates int
	MissingRain  int
	Flags        map[string]int
	Err          error // non-nil when the file was skipped
}

func (r FileReport) Skipped() bool {
	return r.Err != nil
}

type LoadResult struct {
	Records []models.DailyRecord
	Files   []FileReport
}

// Skipped returns the reports of files that failed validation.
func (r LoadResult) Skipped() []FileReport {
	var out []FileReport
	for _, f := range r.Files {
		if f.Skipped() {
			out = append(out, f)
		}
	}
	return out
}

// ReadStationCSV parses one station file. layout is a Go time layout (see
// DateLayout). Rows with unparseable dates are dropped; rows with unparseable
// rain are kept with an invalid Rain so they count as missing.
func ReadStationCSV(r io.Reader, source, layout string) ([]models.DailyRecord, FileReport, error) {
	report := FileReport{Name: source, Flags: map[string]int{}}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, report, errors.New("empty file")
	}
	if err != nil {
		return nil, report, fmt.Errorf("read header: %w", err)
	}
	header = stripBOM(header)

	if missing := ValidateHeader(header); len(missing) > 0 {
		return nil, report, &MissingColumnsError{Columns: missing}
	}
	idx := columnIndex(header)

	var records []models.DailyRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("read line %d: %w", line, err)
		}

		date, err := time.Parse(layout, strings.TrimSpace(cell(row, idx[ColDate])))
		if err != nil {
			report.DroppedDates++
			continue
		}

		rec := models.DailyRecord{
			Station: models.StationMeta{
				Number:    cell(row, idx[ColStationNumber]),
				Name:      cell(row, idx[ColStationName]),
				Height:    cell(row, idx[ColHeight]),
				Easting:   cell(row, idx[ColEasting]),
				Northing:  cell(row, idx[ColNorthing]),
				Latitude:  cell(row, idx[ColLatitude]),
				Longitude: cell(row, idx[ColLongitude]),
			},
			Date:   date,
			Rain:   parseNumber(cell(row, idx[ColRain])),
			Source: source,
		}
		if !rec.Rain.Valid {
			report.MissingRain++
		}
		for _, flag := range ValidateRecord(&rec) {
			report.Flags[flag]++
		}
		records = append(records, rec)
	}

	report.Rows = len(records)
	return records, report, nil
}

// LoadFolder reads every *.csv file in dir. Files that fail validation are
// skipped and reported; the load only fails when nothing usable remains.
func LoadFolder(dir, dateFormat string) (*LoadResult, error) {
	layout, err := DateLayout(dateFormat)
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoCSVFiles)
	}

	result := &LoadResult{}
	loaded := 0
	for _, path := range files {
		records, report := loadFile(path, layout)
		result.Files = append(result.Files, report)

		if report.Skipped() {
			log.Printf("ingest: skipping %s: %v", report.Name, report.Err)
			metrics.FilesSkipped.Inc()
			continue
		}

		log.Printf("ingest: loaded %s (rows=%d, dropped dates=%d, missing rain=%d)",
			report.Name, report.Rows, report.DroppedDates, report.MissingRain)
		for flag, n := range report.Flags {
			log.Printf("ingest: %s: %d rows flagged %s", report.Name, n, flag)
		}
		metrics.FilesLoaded.Inc()
		metrics.RowsLoaded.Add(float64(report.Rows))
		metrics.RowsDroppedDate.Add(float64(report.DroppedDates))
		metrics.RainMissing.Add(float64(report.MissingRain))

		result.Records = append(result.Records, records...)
		loaded++
	}

	if loaded == 0 {
		return result, ErrNoValidFiles
	}
	return result, nil
}

func loadFile(path, layout string) ([]models.DailyRecord, FileReport) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, FileReport{Name: name, Err: fmt.Errorf("open: %w", err)}
	}
	defer f.Close()

	records, report, err := ReadStationCSV(f, name, layout)
	if err != nil {
		report.Err = err
		return nil, report
	}
	return records, report
}
