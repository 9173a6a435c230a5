package store

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

type dialect struct {
	name string
	// lockSuffix is appended to single-row selects that must hold a write lock.
	lockSuffix string
	numbered   bool
}

var (
	sqliteDialect   = dialect{name: DriverSQLite}
	postgresDialect = dialect{name: DriverPostgres, lockSuffix: " FOR UPDATE", numbered: true}
)

// rebind rewrites ? placeholders to $N for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// classify turns constraint violations into domain errors and returns any
// other error unchanged.
func (d dialect) classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return core.ErrConflict(core.CodeUniqueViolation, "unique constraint violated").
				WithCause(err).WithDetail("constraint", pgErr.ConstraintName)
		case "23514":
			return core.ErrValidation(core.CodeCheckViolation, "check constraint violated").
				WithCause(err).WithDetail("constraint", pgErr.ConstraintName)
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return core.ErrConflict(core.CodeUniqueViolation, "unique constraint violated").WithCause(err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return core.ErrValidation(core.CodeCheckViolation, "check constraint violated").WithCause(err)
		}
	}
	return err
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
