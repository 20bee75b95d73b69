package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/policyingest/internal/core"
)

const userColumns = `u.id, COALESCE(u.first_name, ''), u.email, COALESCE(u.phone_number, '')`

const policySelect = `SELECT p.id, p.policy_number, p.policy_start_date, p.policy_end_date,
	COALESCE(l.category_name, ''), COALESCE(c.company_name, ''),
	` + userColumns + `
FROM policies p
LEFT JOIN lines_of_business l ON l.id = p.policy_category_id
LEFT JOIN carriers c ON c.id = p.company_id
LEFT JOIN users u ON u.id = p.user_id`

// SearchUsers implements core.Querier.
func (s *Store) SearchUsers(ctx context.Context, fragment string) ([]core.UserSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.first_name ILIKE $1 ORDER BY u.created_at, u.id`,
		likePattern(fragment))
	if err != nil {
		return nil, classify(core.KindUser, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.UserSummary, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, classify(core.KindUser, err)
	}
	return out, nil
}

// Policies implements core.Querier.
func (s *Store) Policies(ctx context.Context, userIDs []core.ID) ([]core.PolicyView, error) {
	query := policySelect
	var args []any
	if userIDs != nil {
		ids := make([]pgtype.UUID, len(userIDs))
		for i, id := range userIDs {
			ids[i] = toUUID(id)
		}
		query += ` WHERE p.user_id = ANY($1::uuid[])`
		args = append(args, ids)
	}
	query += ` ORDER BY u.id, p.policy_number`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(core.KindPolicy, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.PolicyView, error) {
		return scanPolicy(row)
	})
	if err != nil {
		return nil, classify(core.KindPolicy, err)
	}
	return out, nil
}

// SampleUser implements core.Querier.
func (s *Store) SampleUser(ctx context.Context) (core.UserSummary, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users u ORDER BY u.created_at LIMIT 1`)
	u, err := scanUser(row)
	if err != nil {
		return core.UserSummary{}, classify(core.KindUser, err)
	}
	return u, nil
}

// SamplePolicy implements core.Querier.
func (s *Store) SamplePolicy(ctx context.Context) (core.PolicyView, error) {
	row := s.db.QueryRow(ctx, policySelect+` ORDER BY p.created_at LIMIT 1`)
	p, err := scanPolicy(row)
	if err != nil {
		return core.PolicyView{}, classify(core.KindPolicy, err)
	}
	return p, nil
}

func scanUser(row pgx.Row) (core.UserSummary, error) {
	var (
		u     core.UserSummary
		id    pgtype.UUID
		email pgtype.Text
	)
	if err := row.Scan(&id, &u.FirstName, &email, &u.PhoneNumber); err != nil {
		return core.UserSummary{}, err
	}
	u.ID = fromUUID(id)
	u.Email = email.String
	return u, nil
}

func scanPolicy(row pgx.Row) (core.PolicyView, error) {
	var (
		p          core.PolicyView
		id, userID pgtype.UUID
		start, end pgtype.Date
		email      pgtype.Text
		first      pgtype.Text
		phone      pgtype.Text
	)
	err := row.Scan(&id, &p.PolicyNumber, &start, &end, &p.Category, &p.Company,
		&userID, &first, &email, &phone)
	if err != nil {
		return core.PolicyView{}, fmt.Errorf("scan policy: %w", err)
	}
	p.ID = fromUUID(id)
	p.StartDate = start.Time
	p.EndDate = end.Time
	p.User = core.UserSummary{
		ID:          fromUUID(userID),
		FirstName:   first.String,
		Email:       email.String,
		PhoneNumber: phone.String,
	}
	return p, nil
}
