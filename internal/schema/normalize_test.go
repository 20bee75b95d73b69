package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		row     Row
		aliases []string
		want    string
		wantOK  bool
	}{
		{
			name:    "exact match",
			row:     Row{"email": "a@b.com"},
			aliases: []string{"email"},
			want:    "a@b.com",
			wantOK:  true,
		},
		{
			name:    "case and whitespace insensitive header",
			row:     Row{"  Email Address ": "a@b.com"},
			aliases: []string{"email", "email address"},
			want:    "a@b.com",
			wantOK:  true,
		},
		{
			name:    "inner whitespace collapsed",
			row:     Row{"Policy   Number": "P-1"},
			aliases: AliasesFor(PolicyNumber),
			want:    "P-1",
			wantOK:  true,
		},
		{
			name:    "first alias wins",
			row:     Row{"company": "Second", "company_name": "First"},
			aliases: AliasesFor(CompanyName),
			want:    "First",
			wantOK:  true,
		},
		{
			name:    "value trimmed",
			row:     Row{"agent": "  Jane  "},
			aliases: AliasesFor(AgentName),
			want:    "Jane",
			wantOK:  true,
		},
		{
			name:    "blank value is absent",
			row:     Row{"agent": "   "},
			aliases: AliasesFor(AgentName),
			wantOK:  false,
		},
		{
			name:    "no matching header",
			row:     Row{"something": "x"},
			aliases: AliasesFor(Email),
			wantOK:  false,
		},
		{
			name:    "empty row",
			row:     Row{},
			aliases: AliasesFor(Email),
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.row, tt.aliases)
			if ok != tt.wantOK {
				t.Fatalf("Lookup() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Lookup() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLookup_DoesNotMutateRow(t *testing.T) {
	row := Row{" Email ": " a@b.com "}
	Lookup(row, AliasesFor(Email))

	assert.Equal(t, Row{" Email ": " a@b.com "}, row)
}

func TestNormalize(t *testing.T) {
	row := Row{
		"Policy Number":   "P-100",
		"START DATE":      "2024-01-01",
		"end date":        "2024-12-31",
		"LOB":             "Auto",
		"Carrier":         "Acme",
		" email ":         "X@Y.COM",
		"First Name":      "Ann",
		"Date of Birth":   "1990-05-01",
		"Phone Number":    "555-0100",
		"Type":            "Active Client",
		"Account Name":    "Ann Acct",
		"Agent":           "Bob",
		"unrelated":       "ignored",
		"policy category": "",
	}

	rec := Normalize(row)

	want := Record{
		PolicyNumber:    "P-100",
		PolicyStartDate: "2024-01-01",
		PolicyEndDate:   "2024-12-31",
		CategoryName:    "Auto",
		CompanyName:     "Acme",
		Email:           "X@Y.COM",
		FirstName:       "Ann",
		DOB:             "1990-05-01",
		Phone:           "555-0100",
		UserType:        "Active Client",
		AccountName:     "Ann Acct",
		AgentName:       "Bob",
	}
	assert.Equal(t, want, rec)
	assert.False(t, rec.Has(Gender))
}

func TestNormalize_MatchesLookup(t *testing.T) {
	row := Row{"Zip": "12345", "zipcode": "99999", "SEX": "F"}
	rec := Normalize(row)

	for _, fa := range Aliases {
		want, wantOK := Lookup(row, fa.Aliases)
		got, ok := rec.Get(fa.Field)
		if ok != wantOK || got != want {
			t.Errorf("%s: Normalize = (%q, %v), Lookup = (%q, %v)", fa.Field, got, ok, want, wantOK)
		}
	}
}

func TestHeaderKey(t *testing.T) {
	tests := map[string]string{
		"Email":            "email",
		"  Email  Address": "email address",
		"POLICY_NUMBER":    "policy_number",
		"\tStart\nDate ":   "start date",
	}
	for in, want := range tests {
		if got := HeaderKey(in); got != want {
			t.Errorf("HeaderKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAliasesFor_Unknown(t *testing.T) {
	assert.Nil(t, AliasesFor(Field("nope")))
}
