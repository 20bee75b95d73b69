package core

// convert.go turns the loosely formatted cell text of policy files into typed
// values. Spreadsheets exported by different tools disagree on date layouts,
// so ParseDate accepts US, EU and ISO forms, 2-digit years and Excel serial
// day numbers.

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// maxExcelSerial is 9999-12-31 in the 1900 date system.
const maxExcelSerial = 2958465

// Date layouts split by year format for proper 2-digit year handling.
// Slashes and dashes are read month first, dots day first.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "2.1.06", "02.01.06", "2-Jan-06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "2.1.2006", "02.01.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "January 2, 2006", "2 Jan 2006", "2-Jan-2006",
		"20060102",
	}
	timestampLayouts = []string{
		time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "1/2/2006 15:04:05", "1/2/2006 15:04",
	}
)

// ParseDate converts cell text to a calendar date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date: %w", ErrInvalidInput)
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), nil
		}
	}

	// Spreadsheet cells without a date format come through as serial days.
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 && f <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return dateOnly(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q: %w", s, ErrInvalidInput)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Gender values accepted by the user entity.
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
	GenderOther  = "Other"
)

// ParseGender maps cell text onto the gender enum. Matching ignores case and
// accepts single-letter shorthands. Empty input yields GenderOther.
func ParseGender(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return GenderOther, nil
	case "m", "male":
		return GenderMale, nil
	case "f", "female":
		return GenderFemale, nil
	case "o", "other":
		return GenderOther, nil
	default:
		return "", fmt.Errorf("invalid gender %q: %w", s, ErrInvalidInput)
	}
}
