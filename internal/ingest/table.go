package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

type table struct {
	header []string
	rows   [][]string
}

// readTable loads a whole CSV file. kind names the file in errors.
func readTable(path, kind string) (*table, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s CSV not found: %s: %w", kind, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s CSV: %w", kind, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s CSV %s is empty", kind, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s CSV header: %w", kind, err)
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s CSV: %w", kind, err)
	}
	return &table{header: stripBOM(header), rows: rows}, nil
}

func (t *table) column(i int) []string {
	out := make([]string, len(t.rows))
	for r, row := range t.rows {
		out[r] = cell(row, i)
	}
	return out
}
