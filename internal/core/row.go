package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/JonMunkholm/policyingest/internal/schema"
)

// Defaults for optional user attributes.
const (
	DefaultAddress = "N/A"
	DefaultState   = "N/A"
	DefaultZipCode = "N/A"
)

// Names reported when a policy cannot be written.
const (
	MissingPolicyNumber = "policy_number"
	MissingStartDate    = "policy_start_date"
	MissingEndDate      = "policy_end_date"
	MissingCategory     = "category_name"
	MissingCompany      = "company_name"
	MissingUser         = "user (email required)"
)

// MissingFieldsError is the soft failure of a row that lacks policy data.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// RowProcessor turns one decoded row into entity writes.
type RowProcessor struct {
	resolver *Resolver
}

// NewRowProcessor returns a RowProcessor writing through resolver.
func NewRowProcessor(resolver *Resolver) *RowProcessor {
	return &RowProcessor{resolver: resolver}
}

// Process resolves the row's entities in dependency order (agent, user,
// account, line of business, carrier) and upserts its policy. A nil error
// means the policy was written. Panics are returned as errors.
func (p *RowProcessor) Process(ctx context.Context, row schema.Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic processing row", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic processing row: %v", r)
		}
	}()

	rec := schema.Normalize(row)

	if name, ok := rec.Get(schema.AgentName); ok {
		if _, err := p.resolver.ResolveOrCreate(ctx, KindAgent, Filter{ColAgentName: name}, nil); err != nil {
			return err
		}
	}

	userID, hasUser, err := p.resolveUser(ctx, rec)
	if err != nil {
		return err
	}

	if name, ok := rec.Get(schema.AccountName); ok && hasUser {
		key := Filter{ColUserID: userID, ColAccountName: name}
		if _, err := p.resolver.Upsert(ctx, KindAccount, key, Attrs{ColAccountName: name}); err != nil {
			return err
		}
	}

	var lobID, carrierID ID
	category, hasLOB := rec.Get(schema.CategoryName)
	if hasLOB {
		if lobID, err = p.resolver.ResolveOrCreate(ctx, KindLOB, Filter{ColCategoryName: category}, nil); err != nil {
			return err
		}
	}
	company, hasCarrier := rec.Get(schema.CompanyName)
	if hasCarrier {
		if carrierID, err = p.resolver.ResolveOrCreate(ctx, KindCarrier, Filter{ColCompanyName: company}, nil); err != nil {
			return err
		}
	}

	if missing := missingPolicyFields(rec, hasLOB, hasCarrier, hasUser); len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}

	number, _ := rec.Get(schema.PolicyNumber)
	start, err := parseField(rec, schema.PolicyStartDate, MissingStartDate)
	if err != nil {
		return err
	}
	end, err := parseField(rec, schema.PolicyEndDate, MissingEndDate)
	if err != nil {
		return err
	}

	_, err = p.resolver.Upsert(ctx, KindPolicy, Filter{ColPolicyNumber: number}, Attrs{
		ColStartDate:  start,
		ColEndDate:    end,
		ColCategoryID: lobID,
		ColCompanyID:  carrierID,
		ColUserID:     userID,
	})
	return err
}

// resolveUser finds the row's user by email. The user is created only when
// the row also carries first name, date of birth, phone and user type.
func (p *RowProcessor) resolveUser(ctx context.Context, rec schema.Record) (ID, bool, error) {
	email, ok := rec.Get(schema.Email)
	if !ok {
		return ID{}, false, nil
	}
	key := Filter{ColEmail: email}

	attrs, invalid := newUserAttrs(rec)
	if attrs != nil {
		id, err := p.resolver.ResolveOrCreate(ctx, KindUser, key, attrs)
		if err != nil {
			return ID{}, false, err
		}
		return id, true, nil
	}

	id, err := p.resolver.Find(ctx, KindUser, key)
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, ErrNotFound):
		// Bad user data only matters when it stops a user from being created.
		return ID{}, false, invalid
	default:
		return ID{}, false, err
	}
}

// newUserAttrs builds the attributes of a new user. It returns nil attrs when
// a minimum field is missing, and nil attrs plus an error when a present
// value cannot be parsed.
func newUserAttrs(rec schema.Record) (Attrs, error) {
	for _, f := range []schema.Field{schema.FirstName, schema.DOB, schema.Phone, schema.UserType} {
		if !rec.Has(f) {
			return nil, nil
		}
	}

	dob, err := parseField(rec, schema.DOB, "dob")
	if err != nil {
		return nil, err
	}
	genderText, _ := rec.Get(schema.Gender)
	gender, err := ParseGender(genderText)
	if err != nil {
		return nil, err
	}

	first, _ := rec.Get(schema.FirstName)
	phone, _ := rec.Get(schema.Phone)
	userType, _ := rec.Get(schema.UserType)
	return Attrs{
		ColFirstName: first,
		ColDOB:       dob,
		ColPhone:     phone,
		ColUserType:  userType,
		ColAddress:   valueOr(rec, schema.Address, DefaultAddress),
		ColState:     valueOr(rec, schema.State, DefaultState),
		ColZipCode:   valueOr(rec, schema.ZipCode, DefaultZipCode),
		ColGender:    gender,
	}, nil
}

func missingPolicyFields(rec schema.Record, hasLOB, hasCarrier, hasUser bool) []string {
	var missing []string
	if !rec.Has(schema.PolicyNumber) {
		missing = append(missing, MissingPolicyNumber)
	}
	if !rec.Has(schema.PolicyStartDate) {
		missing = append(missing, MissingStartDate)
	}
	if !rec.Has(schema.PolicyEndDate) {
		missing = append(missing, MissingEndDate)
	}
	if !hasLOB {
		missing = append(missing, MissingCategory)
	}
	if !hasCarrier {
		missing = append(missing, MissingCompany)
	}
	if !hasUser {
		missing = append(missing, MissingUser)
	}
	return missing
}

func parseField(rec schema.Record, f schema.Field, name string) (time.Time, error) {
	v, _ := rec.Get(f)
	t, err := ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date for %s: %w", name, err)
	}
	return t, nil
}

func valueOr(rec schema.Record, f schema.Field, def string) string {
	if v, ok := rec.Get(f); ok {
		return v
	}
	return def
}
