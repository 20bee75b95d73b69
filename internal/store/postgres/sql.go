package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/policyingest/internal/core"
)

// statement is one SQL string with its positional arguments.
type statement struct {
	sql  string
	args []any
}

// builder accumulates positional arguments for one entity's table.
type builder struct {
	def  core.EntityDefinition
	args []any
}

func newBuilder(def core.EntityDefinition) *builder {
	return &builder{def: def}
}

// arg binds v as the next parameter and returns its placeholder.
func (b *builder) arg(col string, v any) string {
	b.args = append(b.args, pgValue(b.def, col, v))
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) where(filter core.Filter) string {
	cols := b.def.SortedColumns(filter)
	if len(cols) == 0 {
		return "TRUE"
	}
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = quoteIdentifier(c) + " = " + b.arg(c, filter[c])
	}
	return strings.Join(conds, " AND ")
}

func (b *builder) table() string {
	return quoteIdentifier(b.def.Info.Table)
}

func (b *builder) done(sql string) statement {
	return statement{sql: sql, args: b.args}
}

func findOneSQL(def core.EntityDefinition, filter core.Filter) statement {
	b := newBuilder(def)
	return b.done(fmt.Sprintf("SELECT id FROM %s WHERE %s LIMIT 1", b.table(), b.where(filter)))
}

func insertSQL(def core.EntityDefinition, attrs core.Attrs) statement {
	b := newBuilder(def)
	cols, vals := b.values(attrs)
	return b.done(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		b.table(), strings.Join(cols, ", "), strings.Join(vals, ", ")))
}

// upsertSQL inserts filter+update, or updates the update columns of the row
// holding the same unique key. filter must be exactly the unique key.
func upsertSQL(def core.EntityDefinition, filter core.Filter, update core.Attrs) statement {
	merged := make(core.Attrs, len(filter)+len(update))
	for k, v := range filter {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}

	b := newBuilder(def)
	cols, vals := b.values(merged)

	key := make([]string, len(def.UniqueKey))
	for i, k := range def.UniqueKey {
		key[i] = quoteIdentifier(k)
	}

	var sets []string
	for _, c := range def.SortedColumns(update) {
		if _, isKey := filter[c]; isKey {
			continue
		}
		q := quoteIdentifier(c)
		sets = append(sets, q+" = EXCLUDED."+q)
	}
	sets = append(sets, "updated_at = now()")

	return b.done(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING id",
		b.table(), strings.Join(cols, ", "), strings.Join(vals, ", "),
		strings.Join(key, ", "), strings.Join(sets, ", ")))
}

// updateSQL updates the first row matching filter.
func updateSQL(def core.EntityDefinition, filter core.Filter, update core.Attrs) statement {
	b := newBuilder(def)
	var sets []string
	for _, c := range def.SortedColumns(update) {
		sets = append(sets, quoteIdentifier(c)+" = "+b.arg(c, update[c]))
	}
	sets = append(sets, "updated_at = now()")
	return b.done(fmt.Sprintf("UPDATE %s SET %s WHERE id = (SELECT id FROM %s WHERE %s LIMIT 1) RETURNING id",
		b.table(), strings.Join(sets, ", "), b.table(), b.where(filter)))
}

func countSQL(def core.EntityDefinition) statement {
	return statement{sql: fmt.Sprintf("SELECT count(*) FROM %s", quoteIdentifier(def.Info.Table))}
}

func (b *builder) values(attrs core.Attrs) (cols, vals []string) {
	for _, c := range b.def.SortedColumns(attrs) {
		cols = append(cols, quoteIdentifier(c))
		vals = append(vals, b.arg(c, attrs[c]))
	}
	return cols, vals
}

// isKeyFilter reports whether filter names exactly the unique key columns.
func isKeyFilter(def core.EntityDefinition, filter core.Filter) bool {
	if len(filter) != len(def.UniqueKey) {
		return false
	}
	for _, k := range def.UniqueKey {
		if _, ok := filter[k]; !ok {
			return false
		}
	}
	return true
}

// pgValue converts an attribute into the pgtype value of its column. Empty
// strings, zero dates and nil ids become NULL.
func pgValue(def core.EntityDefinition, col string, v any) any {
	c, ok := def.Column(col)
	if !ok {
		return v
	}
	switch c.Type {
	case core.ColumnText:
		if s, ok := v.(string); ok {
			return pgtype.Text{String: s, Valid: s != ""}
		}
	case core.ColumnDate:
		if t, ok := v.(time.Time); ok {
			return pgtype.Date{Time: t, Valid: !t.IsZero()}
		}
	case core.ColumnRef:
		if id, ok := v.(core.ID); ok {
			return toUUID(id)
		}
	}
	return v
}

func toUUID(id core.ID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != core.ID{}}
}

func fromUUID(u pgtype.UUID) core.ID {
	if !u.Valid {
		return core.ID{}
	}
	return core.ID(u.Bytes)
}

// quoteIdentifier safely quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// likePattern escapes LIKE wildcards in s and wraps it for a contains match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
