// CLAUDE:SUMMARY Opens the slot and run-log SQLite database: per-connection pragmas in the DSN, atomic schema setup, in-memory variant for tests.
// Package dbopen opens the SQLite file holding widget slots and the run log.
//
// Pragmas travel in the DSN (_pragma=...), so every pooled connection gets
// them, not only the one that happened to run them:
//
//	busy_timeout(10000) foreign_keys(1) journal_mode(WAL) synchronous(NORMAL)
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("relwidget.db", dbopen.WithSchema(observability.Schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

type options struct {
	driver  string
	busy    time.Duration
	mkdir   bool
	schemas []string
}

// Option customises Open.
type Option func(*options)

// WithDriver sets the database/sql driver, e.g. the tracing wrapper.
// Default: "sqlite".
func WithDriver(name string) Option { return func(o *options) { o.driver = name } }

// WithBusyTimeout sets how long a writer waits on a locked database before
// SQLite reports BUSY. Default: 10s.
func WithBusyTimeout(d time.Duration) Option { return func(o *options) { o.busy = d } }

// WithMkdirAll creates the directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdir = true } }

// WithSchema adds DDL applied at open time. All schemas run in one
// transaction: either every table exists afterwards or none was created.
func WithSchema(ddl string) Option {
	return func(o *options) { o.schemas = append(o.schemas, ddl) }
}

// DSN returns path with the connection pragmas appended.
func DSN(path string, busy time.Duration) string {
	q := url.Values{}
	for _, p := range []string{
		fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()),
		"foreign_keys(1)",
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
	} {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// Open opens the database at path, applies the schemas and pings it. The
// caller blank-imports modernc.org/sqlite or selects a driver that wraps it.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := options{driver: "sqlite", busy: 10 * time.Second}
	for _, fn := range opts {
		fn(&o)
	}

	if o.mkdir && path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(o.driver, DSN(path, o.busy))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if path == Memory {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}
	if err := applySchemas(db, o.schemas); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func applySchemas(db *sql.DB, schemas []string) error {
	if len(schemas) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("dbopen: schema: begin: %w", err)
	}
	for i, ddl := range schemas {
		if _, err := tx.Exec(ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("dbopen: schema %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: schema: commit: %w", err)
	}
	return nil
}

// OpenMemory opens a private in-memory database closed at test cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(Memory, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
