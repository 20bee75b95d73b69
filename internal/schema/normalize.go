// Package schema maps loosely named spreadsheet headers onto the canonical
// fields of a policy import row.
package schema

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Row is one decoded data row keyed by the header text as it appeared in the file.
type Row map[string]string

// Record is a row projected onto canonical fields. Only fields with a
// non-blank value are present.
type Record map[Field]string

// Get returns the value for f and whether it was present.
func (r Record) Get(f Field) (string, bool) {
	v, ok := r[f]
	return v, ok
}

// Has reports whether f carries a value.
func (r Record) Has(f Field) bool {
	_, ok := r[f]
	return ok
}

// HeaderKey is the comparison form of a header: case folded and Unicode
// normalized, with surrounding whitespace trimmed and inner runs collapsed.
// A Caser is not safe for concurrent use, so one is built per call.
func HeaderKey(h string) string {
	h = norm.NFC.String(h)
	return cases.Fold().String(strings.Join(strings.Fields(h), " "))
}

// Lookup returns the trimmed value of the first alias that matches a header
// in row. A whitespace-only value counts as absent. The row is not modified.
//
// When two headers fold to the same key the lexically smallest header text is
// used so that the result does not depend on map order.
func Lookup(row Row, aliases []string) (string, bool) {
	if len(row) == 0 {
		return "", false
	}
	for _, alias := range aliases {
		want := HeaderKey(alias)
		var (
			header string
			found  bool
		)
		for h := range row {
			if HeaderKey(h) != want {
				continue
			}
			if !found || h < header {
				header = h
				found = true
			}
		}
		if !found {
			continue
		}
		v := strings.TrimSpace(row[header])
		return v, v != ""
	}
	return "", false
}

// Normalize projects row onto every canonical field in the alias table.
func Normalize(row Row) Record {
	rec := make(Record, len(Aliases))
	if len(row) == 0 {
		return rec
	}

	// Fold headers once per row instead of once per alias.
	keys := make(map[string]string, len(row))
	for h := range row {
		k := HeaderKey(h)
		if prev, ok := keys[k]; ok && prev < h {
			continue
		}
		keys[k] = h
	}

	for _, fa := range Aliases {
		for _, alias := range fa.Aliases {
			h, ok := keys[HeaderKey(alias)]
			if !ok {
				continue
			}
			if v := strings.TrimSpace(row[h]); v != "" {
				rec[fa.Field] = v
			}
			break
		}
	}
	return rec
}
