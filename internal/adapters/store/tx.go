package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// tx implements core.Tx on top of one *sql.Tx.
type tx struct {
	tx  *sql.Tx
	d   dialect
	now func() time.Time
}

var _ core.Tx = (*tx)(nil)

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.d.rebind(query), args...)
	if err != nil {
		return nil, t.d.classify(err)
	}
	return res, nil
}

func (t *tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.d.rebind(query), args...)
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.d.rebind(query), args...)
}

func (t *tx) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := t.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// affected runs an update and returns the number of rows it touched.
func (t *tx) affected(ctx context.Context, query string, args ...any) (int, error) {
	res, err := t.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// notFound maps sql.ErrNoRows to a domain not-found error.
func notFound(err error, resource, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound(resource, id)
	}
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func stagePtr(ns sql.NullString) *core.StageID {
	if !ns.Valid {
		return nil
	}
	id := core.StageID(ns.String)
	return &id
}

func stageArg(id *core.StageID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}
