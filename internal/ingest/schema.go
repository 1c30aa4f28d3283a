package ingest

import (
	"bytes"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ncruces/go-strftime"
)

// Column names expected in every station CSV.
const (
	ColStationNumber = "Station Number"
	ColStationName   = "Station Name"
	ColHeight        = "Height"
	ColEasting       = "Easting"
	ColNorthing      = "Northing"
	ColLatitude      = "Latitude"
	ColLongitude     = "Longitude"
	ColDate          = "date"
	ColRain          = "rain"
)

// MetaColumns are the station identity columns, in output order.
var MetaColumns = []string{
	ColStationNumber, ColStationName, ColHeight, ColEasting,
	ColNorthing, ColLatitude, ColLongitude,
}

var RequiredColumns = append(append([]string{}, MetaColumns...), ColDate, ColRain)

// DefaultDateFormat matches ISO dates such as 2024-01-31.
const DefaultDateFormat = "%Y-%m-%d"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ValidateHeader returns the required columns absent from header, in
// RequiredColumns order.
func ValidateHeader(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// DateLayout converts a strftime format such as "%d-%b-%y" into a Go time
// layout. A format without any '%' is assumed to already be a Go layout.
func DateLayout(format string) (string, error) {
	if format == "" {
		format = DefaultDateFormat
	}
	if !strings.Contains(format, "%") {
		return format, nil
	}
	layout, err := strftime.Layout(unpadded(format))
	if err != nil {
		return "", fmt.Errorf("date format %q: %w", format, err)
	}
	return layout, nil
}

// unpadded adds the '-' flag to %d and %m so the resulting layout accepts
// both "5" and "05".
func unpadded(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		b.WriteByte(c)
		if c != '%' || i+1 >= len(format) {
			continue
		}
		switch next := format[i+1]; next {
		case 'd', 'm':
			b.WriteByte('-')
		case '%':
			b.WriteByte(next)
			i++
		}
	}
	return b.String()
}

// parseNumber coerces a cell to a float. Empty, unparseable and NaN cells are
// reported invalid rather than as errors.
func parseNumber(s string) sql.NullFloat64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func parseYear(s string) (int, bool) {
	v := parseNumber(s)
	if !v.Valid || v.Float64 != math.Trunc(v.Float64) || math.IsInf(v.Float64, 0) {
		return 0, false
	}
	return int(v.Float64), true
}

func stripBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = string(bytes.TrimPrefix([]byte(header[0]), utf8BOM))
	}
	return header
}

// columnIndex maps header names to positions; the first occurrence wins.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}
	return idx
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
