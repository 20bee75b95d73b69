// Package decode reads policy import files into header-keyed rows.
// Spreadsheets (.xlsx, .xlsm, .xls) are read from their first sheet; .csv files
// are read with BOM, UTF-16 and Windows-1252 detection.
package decode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/policyingest/internal/schema"
)

// ErrUnsupportedFormat is returned for extensions other than spreadsheet or csv.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Format is a supported input format.
type Format string

const (
	FormatSpreadsheet Format = "spreadsheet"
	FormatCSV         Format = "csv"
)

// Detect maps a file name to its format by extension, case-insensitively.
func Detect(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".xlsx", ".xlsm", ".xls":
		return FormatSpreadsheet, nil
	case ".csv":
		return FormatCSV, nil
	default:
		if ext == "" {
			ext = "(none)"
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// File decodes the whole file at path. The header row is not returned; rows
// whose cells are all blank are dropped.
func File(path string) ([]schema.Row, error) {
	format, err := Detect(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatSpreadsheet:
		return Spreadsheet(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("unreadable file: %w", err)
		}
		defer f.Close()
		return CSV(f)
	}
}

// toRows converts a header line plus data lines into rows. Cells beyond the
// header are ignored, missing cells read as empty, and a repeated header keeps
// its first column.
func toRows(lines [][]string) []schema.Row {
	if len(lines) == 0 {
		return nil
	}

	header := lines[0]
	cols := make([]int, 0, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = CleanCell(h)
		key := schema.HeaderKey(h)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		header[i] = h
		cols = append(cols, i)
	}

	rows := make([]schema.Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if isEmptyRow(line) {
			continue
		}
		row := make(schema.Row, len(cols))
		for _, i := range cols {
			var v string
			if i < len(line) {
				v = CleanCell(line[i])
			}
			row[header[i]] = v
		}
		rows = append(rows, row)
	}
	return rows
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(line []string) bool {
	for _, cell := range line {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// CleanCell removes common spreadsheet export artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix (="...") and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}
