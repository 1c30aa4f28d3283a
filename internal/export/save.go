package export

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ncruces/go-strftime"

	"github.com/lox/bogwatch/internal/metrics"
)

const fallbackStamp = "%Y%m%d-%H%M%S"

// Saver writes output files. When the target cannot be written (typically a
// spreadsheet holding a lock on it) it retries briefly, then writes a
// timestamped sibling instead of failing the run.
type Saver struct {
	Retries int
	Wait    time.Duration
	Now     func() time.Time
}

func NewSaver() *Saver {
	return &Saver{
		Retries: 2,
		Wait:    250 * time.Millisecond,
		Now:     time.Now,
	}
}

// SaveResult reports where output actually went.
type SaveResult struct {
	Path     string
	Fallback bool
	Cause    error // why the requested path was not used
}

// Save renders once and writes the bytes to path, or to FallbackPath(path)
// when path is not writable. Only a failure of both is an error.
func (s *Saver) Save(path string, render func(io.Writer) error) (SaveResult, error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return SaveResult{}, fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	data := buf.Bytes()

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.Wait), uint64(s.Retries))
	err := backoff.Retry(func() error { return writeFile(path, data) }, bo)
	if err == nil {
		log.Printf("export: saved %s", path)
		metrics.OutputsWritten.WithLabelValues("no").Inc()
		return SaveResult{Path: path}, nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	alt := FallbackPath(path, now())
	if ferr := writeFile(alt, data); ferr != nil {
		return SaveResult{Cause: err}, fmt.Errorf("save %s: %v; fallback %s: %w", path, err, alt, ferr)
	}

	log.Printf("export: could not save to %s (%v), saved as %s instead", path, err, alt)
	metrics.OutputsWritten.WithLabelValues("yes").Inc()
	return SaveResult{Path: alt, Fallback: true, Cause: err}, nil
}

func (s *Saver) SaveCSV(path string, t Table) (SaveResult, error) {
	return s.Save(path, func(w io.Writer) error { return WriteCSV(w, t) })
}

// FallbackPath inserts a timestamp before the extension:
// out/summary.csv becomes out/summary_20250131-142501.csv.
func FallbackPath(path string, t time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + strftime.Format(fallbackStamp, t) + ext
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
