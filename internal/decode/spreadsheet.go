package decode

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/policyingest/internal/schema"
)

// Spreadsheet decodes the first sheet of the workbook at path using the
// cells' formatted text, so date cells arrive as they are displayed.
func Spreadsheet(path string) ([]schema.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("unreadable file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	lines, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("unreadable file: sheet %q: %w", sheets[0], err)
	}
	return toRows(lines), nil
}
