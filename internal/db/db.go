// Package db owns the single connection to the devdesk database file and
// the schema it holds.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // cgo engine, "sqlite3"
	_ "modernc.org/sqlite"          // pure Go engine, "sqlite"
)

// Driver selects the SQLite engine.
type Driver string

const (
	// DriverModernc is the pure Go engine. FTS5 is always available.
	DriverModernc Driver = "sqlite"
	// DriverMattn is the cgo engine. Full-text search requires building
	// with the sqlite_fts5 tag.
	DriverMattn Driver = "sqlite3"
)

// Valid reports whether d names a supported engine.
func (d Driver) Valid() bool {
	return d == DriverModernc || d == DriverMattn
}

const memoryPath = ":memory:"

// Options configures Open.
type Options struct {
	Path   string
	Driver Driver
	Logger *slog.Logger
}

// Querier is implemented by both *DB and *Tx so record code can run
// unchanged inside or outside a transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// DB wraps the database connection
type DB struct {
	conn   *sql.DB
	driver Driver
	path   string
	logger *slog.Logger
}

var _ Querier = (*DB)(nil)

// Open opens the database file at opts.Path, creating parent directories
// as needed. The pool is pinned to a single connection for the lifetime
// of the handle.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Driver == "" {
		opts.Driver = DriverModernc
	}
	if !opts.Driver.Valid() {
		return nil, fmt.Errorf("db: unknown driver %q", opts.Driver)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Path == "" {
		return nil, errors.New("db: empty path")
	}

	if opts.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open(string(opts.Driver), dsn(opts.Driver, opts.Path))
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", opts.Path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: enable foreign keys: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db: set busy timeout: %w", err)
	}

	opts.Logger.Debug("database opened", "path", opts.Path, "driver", string(opts.Driver))
	return &DB{conn: conn, driver: opts.Driver, path: opts.Path, logger: opts.Logger}, nil
}

// OpenInMemory opens a private in-memory database. Each call yields an
// isolated database that lives as long as the handle.
func OpenInMemory(ctx context.Context, driver Driver, logger *slog.Logger) (*DB, error) {
	return Open(ctx, Options{Path: memoryPath, Driver: driver, Logger: logger})
}

// dsn adds the engine-specific pragma parameters for file databases so a
// replaced connection comes back with the same settings.
func dsn(driver Driver, path string) string {
	if path == memoryPath {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	switch driver {
	case DriverMattn:
		return path + sep + "_foreign_keys=on&_busy_timeout=5000"
	default:
		return "file:" + path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
}

// Close releases the connection. Calling it more than once is harmless.
func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Driver returns the engine in use.
func (d *DB) Driver() Driver { return d.driver }

// Logger returns the handle's logger.
func (d *DB) Logger() *slog.Logger { return d.logger }

// Query runs a statement that returns rows.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.conn.QueryContext(ctx, query, args...)
}

// QueryRow runs a statement that returns at most one row. An empty result
// surfaces as sql.ErrNoRows from Scan.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn.QueryRowContext(ctx, query, args...)
}

// Exec runs a statement and returns the number of rows it changed.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Tx is a transaction on the handle's connection.
type Tx struct {
	tx *sql.Tx
}

var _ Querier = (*Tx)(nil)

func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Transaction runs fn with exclusive use of the connection. It commits
// when fn returns nil and rolls back when fn returns an error or panics.
// fn must issue every statement through q; the handle itself blocks until
// the transaction ends.
func (d *DB) Transaction(ctx context.Context, fn func(q Querier) error) (err error) {
	sqlTx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ObjectExists reports whether sqlite_master has an object of the given
// type ("table", "index", "trigger") and name.
func ObjectExists(ctx context.Context, q Querier, typ, name string) (bool, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?`, typ, name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", typ, name, err)
	}
	return n > 0, nil
}

// TableColumns returns the column names of table in declaration order.
func TableColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return cols, nil
}
