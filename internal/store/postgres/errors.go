package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/policyingest/internal/core"
)

// uniqueViolation is the SQLSTATE of a unique index conflict.
const uniqueViolation = "23505"

// classify maps driver errors onto the store sentinels.
func classify(kind core.Kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", kind, core.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w (%s)", kind, core.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", kind, err)
}
