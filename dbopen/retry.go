package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Slot upserts and run-log flushes can collide when `relwidget run
// -in-widget` writes the file a `serve` process holds open.
const (
	txAttempts = 3
	txBackoff  = 100 * time.Millisecond
)

// IsBusy reports whether err is SQLite refusing a lock (BUSY or LOCKED,
// including their extended codes).
func IsBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// RunTx runs fn in a transaction. A BUSY failure is retried with linear
// backoff; any other error from fn rolls back and is returned as is.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		if err = runOnce(ctx, db, fn); err == nil || !IsBusy(err) {
			return err
		}
		if attempt == txAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("dbopen: retry: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * txBackoff):
		}
	}
	return fmt.Errorf("dbopen: still busy after %d attempts: %w", txAttempts, err)
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}
