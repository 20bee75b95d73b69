package decode

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"

	"github.com/JonMunkholm/policyingest/internal/schema"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"policies.xlsx", FormatSpreadsheet, false},
		{"POLICIES.XLS", FormatSpreadsheet, false},
		{"macro.xlsm", FormatSpreadsheet, false},
		{"data.csv", FormatCSV, false},
		{"data.CSV", FormatCSV, false},
		{"notes.txt", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		got, err := Detect(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("Detect(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Detect(%q) error = %v, want ErrUnsupportedFormat", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCSV(t *testing.T) {
	in := strings.Join([]string{
		"Policy Number,Email,Email,Start Date",
		"P-1,a@x.com,dup@x.com,2024-01-01",
		",,,",
		"P-2,b@x.com",
		`"P-3","=""c@x.com""",,2024-03-01,extra`,
	}, "\n")

	rows, err := CSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, schema.Row{"Policy Number": "P-1", "Email": "a@x.com", "Start Date": "2024-01-01"}, rows[0])
	assert.Equal(t, schema.Row{"Policy Number": "P-2", "Email": "b@x.com", "Start Date": ""}, rows[1])
	assert.Equal(t, "c@x.com", rows[2]["Email"])
}

func TestCSV_HeaderOnly(t *testing.T) {
	rows, err := CSV(strings.NewReader("policy_number,email\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = CSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestToUTF8(t *testing.T) {
	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte("email\nzoë@x.com\n"))
	require.NoError(t, err)

	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"plain utf-8", []byte("email\n"), "email\n"},
		{"utf-8 bom stripped", append([]byte{0xEF, 0xBB, 0xBF}, "email\n"...), "email\n"},
		{"utf-16le with bom", utf16, "email\nzoë@x.com\n"},
		{"windows-1252", []byte("name\nJos\xe9\n"), "name\nJosé\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToUTF8(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCSV_BOMHeader(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, "Email,Policy Number\na@x.com,P-1\n"...)
	rows, err := CSV(strings.NewReader(string(in)))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	v, ok := schema.Lookup(rows[0], schema.AliasesFor(schema.Email))
	assert.True(t, ok)
	assert.Equal(t, "a@x.com", v)
}

func TestSpreadsheet_FirstSheetOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Policy Number", "Company", "Email"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"P-1", "Acme", "a@x.com"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"P-2", "Globex", "b@x.com"}))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Other", "A1", &[]any{"ignored"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	rows, err := File(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, schema.Row{"Policy Number": "P-1", "Company": "Acme", "Email": "a@x.com"}, rows[0])
	assert.Equal(t, "Globex", rows[1]["Company"])
}

func TestFile_Errors(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o600))
	_, err := File(txt)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	broken := filepath.Join(dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0o600))
	_, err = File(broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable file")

	_, err = File(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable file")
}

func TestCleanCell(t *testing.T) {
	tests := map[string]string{
		"  plain  ":   "plain",
		`="00123"`:    "00123",
		"=SUM":        "SUM",
		`"quoted"`:    "quoted",
		"O'Brien":     "O'Brien",
		"":            "",
	}
	for in, want := range tests {
		if got := CleanCell(in); got != want {
			t.Errorf("CleanCell(%q) = %q, want %q", in, got, want)
		}
	}
}
