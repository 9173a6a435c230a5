// Package store implements the core.Store port on database/sql with two
// dialects: SQLite (modernc.org/sqlite) for embedded use and tests, and
// PostgreSQL (pgx) for server deployments. Both share the same queries; the
// dialect only rebinds placeholders, adds row locks and classifies
// constraint errors.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// Path is the SQLite database file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
	// MaxOpenConns caps the pool size. Zero keeps the driver default.
	MaxOpenConns int
}

// SQLStore implements core.Store.
type SQLStore struct {
	db      *sql.DB
	pool    *pgxpool.Pool
	dialect dialect
	now     func() time.Time
}

var _ core.Store = (*SQLStore)(nil)

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	var (
		s   *SQLStore
		err error
	)
	switch opts.Driver {
	case DriverSQLite, "":
		s, err = openSQLite(opts.Path)
	case DriverPostgres:
		s, err = openPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		s.db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := s.migrate(ctx); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	return Open(ctx, Options{Driver: DriverSQLite, Path: path})
}

func openSQLite(path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	// Immediate transactions take the write lock at BEGIN, which serializes
	// every renumbering the way a row lock does on PostgreSQL.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)" +
		"&_txlock=immediate&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &SQLStore{db: db, dialect: sqliteDialect, now: utcNow}, nil
}

func openPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres store requires a dsn")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &SQLStore{
		db:      stdlib.OpenDBFromPool(pool),
		pool:    pool,
		dialect: postgresDialect,
		now:     utcNow,
	}, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Driver reports which dialect the store speaks.
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

// WithTx runs fn inside one transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx core.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&tx{tx: sqlTx, d: s.dialect, now: s.now}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// migrate applies every embedded migration newer than the recorded version.
func (s *SQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	migrations, err := loadMigrations(s.dialect.name)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLStore) applyMigration(ctx context.Context, m migration) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if _, err := sqlTx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := sqlTx.ExecContext(ctx,
		s.dialect.rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"),
		m.version, s.now()); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type migration struct {
	version int
	sql     string
}

func loadMigrations(dialectName string) ([]migration, error) {
	dir := "migrations/" + dialectName
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	migrations := make([]migration, 0, len(entries))
	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s has no version prefix", e.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		body, err := fs.ReadFile(migrationsFS, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{version: version, sql: string(body)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}
