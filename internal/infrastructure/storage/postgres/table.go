package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

// Builder returns a squirrel builder with PostgreSQL placeholders.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Table provides the common statements of a table whose rows map to T
// through "db" tags. Every statement runs on the transaction carried by the
// context when there is one.
type Table[T any] struct {
	tx     *TxManager
	name   string
	entity string
	cols   []string
}

// NewTable creates a table helper. entity names the rows in NotFound errors.
func NewTable[T any](txm *TxManager, name, entity string) *Table[T] {
	return &Table[T]{
		tx:     txm,
		name:   name,
		entity: entity,
		cols:   Columns[T](),
	}
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.name }

// Columns returns the mapped columns.
func (t *Table[T]) Columns() []string { return t.cols }

// Querier returns the active transaction or the pool.
func (t *Table[T]) Querier(ctx context.Context) Querier { return t.tx.Querier(ctx) }

// SelectQuery starts a SELECT of every mapped column.
func (t *Table[T]) SelectQuery() squirrel.SelectBuilder {
	return Builder().Select(t.cols...).From(t.name)
}

// Insert inserts one row.
func (t *Table[T]) Insert(ctx context.Context, row *T) error {
	q := Builder().Insert(t.name).Columns(t.cols...).Values(Values(row, t.cols)...)
	_, err := t.Exec(ctx, q)
	return err
}

// InsertMany inserts rows. Inside a transaction it streams them with COPY.
func (t *Table[T]) InsertMany(ctx context.Context, rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	if pgxTx := t.tx.GetTx(ctx); pgxTx != nil {
		values := make([][]any, len(rows))
		for i := range rows {
			values[i] = Values(&rows[i], t.cols)
		}
		if _, err := pgxTx.CopyFrom(ctx, pgx.Identifier{t.name}, t.cols, pgx.CopyFromRows(values)); err != nil {
			return fmt.Errorf("copy into %s: %w", t.name, mapError(err))
		}
		return nil
	}

	q := Builder().Insert(t.name).Columns(t.cols...)
	for i := range rows {
		q = q.Values(Values(&rows[i], t.cols)...)
	}
	_, err := t.Exec(ctx, q)
	return err
}

// Update rewrites every mapped column except key and immutable ones on the
// row identified by key. Returns NotFound when no row matches.
func (t *Table[T]) Update(ctx context.Context, row *T, key string, immutable ...string) error {
	data := ColumnMap(row)
	keyValue, ok := data[key]
	if !ok {
		return fmt.Errorf("%s: no column %q", t.name, key)
	}

	set := make(map[string]any, len(t.cols))
	for _, c := range without(t.cols, append(immutable, key)...) {
		set[c] = data[c]
	}

	n, err := t.Exec(ctx, Builder().Update(t.name).SetMap(set).Where(squirrel.Eq{key: keyValue}))
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(pgx.ErrNoRows, t.entity, keyValue)
	}
	return nil
}

// Get returns the single row matching pred. lock appends FOR UPDATE.
func (t *Table[T]) Get(ctx context.Context, pred any, key any, lock bool) (*T, error) {
	q := t.SelectQuery().Where(pred).Limit(1)
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row T
	if err := pgxscan.Get(ctx, t.Querier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, notFound(pgx.ErrNoRows, t.entity, key)
		}
		return nil, fmt.Errorf("get %s: %w", t.name, mapError(err))
	}
	return &row, nil
}

// GetByID returns the row whose id column equals rowID.
func (t *Table[T]) GetByID(ctx context.Context, rowID any, lock bool) (*T, error) {
	return t.Get(ctx, squirrel.Eq{"id": rowID}, rowID, lock)
}

// Select runs q and scans every row.
func (t *Table[T]) Select(ctx context.Context, q squirrel.Sqlizer) ([]*T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []*T
	if err := pgxscan.Select(ctx, t.Querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", t.name, mapError(err))
	}
	return rows, nil
}

// SelectValues runs q and scans every row by value.
func (t *Table[T]) SelectValues(ctx context.Context, q squirrel.Sqlizer) ([]T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []T
	if err := pgxscan.Select(ctx, t.Querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", t.name, mapError(err))
	}
	return rows, nil
}

// Exec runs a statement and returns the affected row count.
func (t *Table[T]) Exec(ctx context.Context, q squirrel.Sqlizer) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	tag, err := t.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("exec on %s: %w", t.name, mapError(err))
	}
	return tag.RowsAffected(), nil
}

// Page applies limit/offset when set.
func Page(q squirrel.SelectBuilder, limit, offset int) squirrel.SelectBuilder {
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q
}
