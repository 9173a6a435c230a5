package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

func TestDialect_Rebind(t *testing.T) {
	q := "UPDATE t SET a = ? WHERE b = ? AND c IN (?, ?)"

	if got := sqliteDialect.rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	want := "UPDATE t SET a = $1 WHERE b = $2 AND c IN ($3, $4)"
	if got := postgresDialect.rebind(q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
	if got := postgresDialect.rebind("SELECT 1"); got != "SELECT 1" {
		t.Errorf("rebind without placeholders = %q", got)
	}
}

func TestDialect_ClassifyPostgres(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_workflow_stage_order"}
	err := postgresDialect.classify(unique)
	if !errors.Is(err, core.ErrKindUniqueViolation) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr.Details["constraint"] != "uq_workflow_stage_order" {
		t.Fatalf("expected constraint detail, got %+v", domErr)
	}

	check := &pgconn.PgError{Code: "23514"}
	if err := postgresDialect.classify(check); !errors.Is(err, core.ErrKindCheckViolation) {
		t.Fatalf("expected check violation, got %v", err)
	}

	other := &pgconn.PgError{Code: "40001"}
	if err := postgresDialect.classify(other); err != other {
		t.Fatalf("expected unrelated error to pass through, got %v", err)
	}
}

func TestDialect_ClassifyPassThrough(t *testing.T) {
	plain := errors.New("connection reset")
	if err := sqliteDialect.classify(plain); err != plain {
		t.Fatalf("expected plain error unchanged, got %v", err)
	}
	if sqliteDialect.classify(nil) != nil {
		t.Fatalf("expected nil for nil")
	}
}

func TestPlaceholders(t *testing.T) {
	tests := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range tests {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	for _, name := range []string{DriverSQLite, DriverPostgres} {
		migrations, err := loadMigrations(name)
		if err != nil {
			t.Fatalf("loadMigrations(%s) error = %v", name, err)
		}
		if len(migrations) == 0 || migrations[0].version != 1 {
			t.Fatalf("loadMigrations(%s) = %+v", name, migrations)
		}
	}
}
