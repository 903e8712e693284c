package observability

import (
	"database/sql"
	"fmt"
)

// Schema contains the DDL for the observability tables.
const Schema = `
CREATE TABLE IF NOT EXISTS widget_runs (
    run_id        TEXT PRIMARY KEY,
    timestamp     INTEGER NOT NULL,
    app_id        TEXT NOT NULL DEFAULT '',
    transport     TEXT NOT NULL DEFAULT '',
    version       TEXT NOT NULL DEFAULT '',
    released      INTEGER NOT NULL DEFAULT 0,
    desaturate    INTEGER NOT NULL DEFAULT 0,
    presented     TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    status        TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_widget_runs_time ON widget_runs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_widget_runs_status ON widget_runs(status);

CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id     TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
    worker_name      TEXT NOT NULL,
    hostname         TEXT NOT NULL,
    worker_pid       INTEGER NOT NULL,
    timestamp        INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb  REAL,
    last_run_id      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, timestamp DESC);
`

// Init applies Schema to db.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("observability: schema: %w", err)
	}
	return nil
}
