package export

import (
	"database/sql"
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Sheet is one named worksheet of a workbook.
type Sheet struct {
	Name  string
	Table Table
}

// SaveWorkbook writes every sheet into a single XLSX file through the same
// fallback logic as SaveCSV.
func (s *Saver) SaveWorkbook(path string, sheets []Sheet) (SaveResult, error) {
	return s.Save(path, func(w io.Writer) error { return WriteWorkbook(w, sheets) })
}

func WriteWorkbook(w io.Writer, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	keepDefault := false
	for _, sh := range sheets {
		if sh.Name == defaultSheet {
			keepDefault = true
		}
		if _, err := f.NewSheet(sh.Name); err != nil {
			return fmt.Errorf("new sheet %s: %w", sh.Name, err)
		}
		if err := writeSheet(f, sh); err != nil {
			return err
		}
	}

	if !keepDefault {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("delete default sheet: %w", err)
		}
	}
	idx, err := f.GetSheetIndex(sheets[0].Name)
	if err != nil {
		return fmt.Errorf("sheet index %s: %w", sheets[0].Name, err)
	}
	f.SetActiveSheet(idx)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sh Sheet) error {
	header := make([]any, len(sh.Table.Columns))
	for i, c := range sh.Table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sh.Name, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sh.Name, err)
	}

	for r, row := range sh.Table.Rows {
		cellName, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for i, c := range row {
			values[i] = xlsxValue(c)
		}
		if err := f.SetSheetRow(sh.Name, cellName, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sh.Name, r+2, err)
		}
	}
	return nil
}

// xlsxValue keeps numbers numeric and blanks out missing values.
func xlsxValue(c any) any {
	switch v := c.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ""
		}
		return v
	case sql.NullFloat64:
		if !v.Valid {
			return ""
		}
		return v.Float64
	default:
		return v
	}
}
