// Package postgres implements core.Store and core.Querier on PostgreSQL.
// Unique indexes on every entity key make concurrent creates safe: the losing
// insert fails with a unique violation, reported as core.ErrConflict.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/policyingest/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store runs entity operations against one DBTX.
type Store struct {
	db    DBTX
	close func(context.Context) error
}

// New returns a Store over db. Close is a no-op; the owner of db closes it.
func New(db DBTX) *Store {
	return &Store{db: db, close: func(context.Context) error { return nil }}
}

// Open dials a dedicated connection to url. Workers use one each.
func Open(ctx context.Context, url string) (*Store, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Store{db: conn, close: conn.Close}, nil
}

// Opener returns a core.StoreOpener that dials a new connection per job.
func Opener() core.StoreOpener {
	return func(ctx context.Context, target string) (core.Store, error) {
		s, err := Open(ctx, target)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// PoolConfig sizes the shared pool used for queries.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPool connects a pool and pings it.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Close closes the connection when the Store owns one.
func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}

// FindOne implements core.Store.
func (s *Store) FindOne(ctx context.Context, kind core.Kind, filter core.Filter) (core.ID, error) {
	def, filter, err := prepare(kind, filter)
	if err != nil {
		return core.ID{}, err
	}
	return s.returningID(ctx, kind, findOneSQL(def, filter))
}

// Create implements core.Store.
func (s *Store) Create(ctx context.Context, kind core.Kind, attrs core.Attrs) (core.ID, error) {
	def, attrs, err := prepare(kind, attrs)
	if err != nil {
		return core.ID{}, err
	}
	return s.returningID(ctx, kind, insertSQL(def, attrs))
}

// FindOneAndUpdate implements core.Store. With Upsert and a filter naming the
// unique key the write is a single INSERT .. ON CONFLICT. Other filters
// update first and insert when nothing matched.
func (s *Store) FindOneAndUpdate(ctx context.Context, kind core.Kind, filter core.Filter, update core.Attrs, opts core.UpdateOptions) (core.ID, error) {
	def, filter, err := prepare(kind, filter)
	if err != nil {
		return core.ID{}, err
	}
	if update, err = def.Normalize(update); err != nil {
		return core.ID{}, err
	}

	if opts.Upsert && isKeyFilter(def, filter) {
		return s.returningID(ctx, kind, upsertSQL(def, filter, update))
	}

	id, err := s.returningID(ctx, kind, updateSQL(def, filter, update))
	if err == nil || !opts.Upsert || !errors.Is(err, core.ErrNotFound) {
		return id, err
	}

	merged := make(core.Attrs, len(filter)+len(update))
	for k, v := range filter {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return s.returningID(ctx, kind, insertSQL(def, merged))
}

// CountDocuments implements core.Store.
func (s *Store) CountDocuments(ctx context.Context, kind core.Kind) (int64, error) {
	def, err := core.Lookup(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	st := countSQL(def)
	if err := s.db.QueryRow(ctx, st.sql, st.args...).Scan(&n); err != nil {
		return 0, classify(kind, err)
	}
	return n, nil
}

func (s *Store) returningID(ctx context.Context, kind core.Kind, st statement) (core.ID, error) {
	var id pgtype.UUID
	if err := s.db.QueryRow(ctx, st.sql, st.args...).Scan(&id); err != nil {
		return core.ID{}, classify(kind, err)
	}
	return fromUUID(id), nil
}

func prepare(kind core.Kind, attrs core.Attrs) (core.EntityDefinition, core.Attrs, error) {
	def, err := core.Lookup(kind)
	if err != nil {
		return core.EntityDefinition{}, nil, err
	}
	attrs, err = def.Normalize(attrs)
	if err != nil {
		return core.EntityDefinition{}, nil, err
	}
	return def, attrs, nil
}

var (
	_ core.Store   = (*Store)(nil)
	_ core.Querier = (*Store)(nil)
	_ DBTX         = (*pgx.Conn)(nil)
	_ DBTX         = (*pgxpool.Pool)(nil)
)
