package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// RunEntry is one pipeline run.
type RunEntry struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	AppID        string    `json:"app_id"`
	Transport    string    `json:"transport"`
	Version      string    `json:"version"`
	Released     bool      `json:"released"`
	Desaturate   int       `json:"desaturate"`
	Presented    string    `json:"presented"`
	DurationMs   int64     `json:"duration_ms"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// RunLog persists run entries, batching async writes.
type RunLog struct {
	db         *sql.DB
	logger     *slog.Logger
	ch         chan *RunEntry
	stop       chan struct{}
	done       chan struct{}
	flushEvery time.Duration
}

// RunLogOption configures a RunLog.
type RunLogOption func(*RunLog)

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) RunLogOption {
	return func(r *RunLog) { r.logger = l }
}

// WithFlushInterval sets how often queued entries are written. Default: 5s.
func WithFlushInterval(d time.Duration) RunLogOption {
	return func(r *RunLog) { r.flushEvery = d }
}

// NewRunLog starts the flush goroutine. Recommended bufferSize: 100.
func NewRunLog(db *sql.DB, bufferSize int, opts ...RunLogOption) *RunLog {
	r := &RunLog{
		db:         db,
		logger:     slog.Default(),
		ch:         make(chan *RunEntry, bufferSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		flushEvery: 5 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	go r.flushLoop()
	return r
}

// Log inserts an entry synchronously.
func (r *RunLog) Log(ctx context.Context, e *RunEntry) error {
	fillDefaults(e)
	return r.insert(ctx, r.db, e)
}

// LogAsync queues an entry. Falls back to a synchronous insert when the
// buffer is full.
func (r *RunLog) LogAsync(e *RunEntry) {
	fillDefaults(e)
	select {
	case r.ch <- e:
	default:
		r.logger.Warn("observability: run buffer full, sync fallback", "run_id", e.RunID)
		if err := r.insert(context.Background(), r.db, e); err != nil {
			r.logger.Error("observability: sync fallback failed", "error", err)
		}
	}
}

// Recent returns the latest runs, newest first. limit <= 0 means 20.
func (r *RunLog) Recent(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, timestamp, app_id, transport, version, released, desaturate,
		       presented, duration_ms, status, error_message
		FROM widget_runs ORDER BY timestamp DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("observability: recent: %w", err)
	}
	defer rows.Close()

	out := []RunEntry{}
	for rows.Next() {
		var (
			e        RunEntry
			ts       int64
			released int
		)
		if err := rows.Scan(&e.RunID, &ts, &e.AppID, &e.Transport, &e.Version, &released,
			&e.Desaturate, &e.Presented, &e.DurationMs, &e.Status, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("observability: scan run: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Released = released != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes runs older than retentionDays.
func (r *RunLog) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := r.db.ExecContext(ctx, "DELETE FROM widget_runs WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup runs: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the buffer and stops the flush goroutine.
func (r *RunLog) Close() error {
	close(r.stop)
	<-r.done
	return nil
}

func fillDefaults(e *RunEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = StatusError
		} else {
			e.Status = StatusSuccess
		}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *RunLog) insert(ctx context.Context, db execer, e *RunEntry) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO widget_runs
		(run_id, timestamp, app_id, transport, version, released, desaturate,
		 presented, duration_ms, status, error_message)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.RunID, e.Timestamp.UnixMilli(), e.AppID, e.Transport, e.Version, boolInt(e.Released),
		e.Desaturate, e.Presented, e.DurationMs, e.Status, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("observability: insert run %s: %w", e.RunID, err)
	}
	return nil
}

func (r *RunLog) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()
	batch := make([]*RunEntry, 0, 32)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			r.logger.Error("observability: begin tx", "error", err)
			return
		}
		for _, e := range batch {
			if err := r.insert(ctx, tx, e); err != nil {
				r.logger.Error("observability: batch insert", "error", err)
			}
		}
		if err := tx.Commit(); err != nil {
			r.logger.Error("observability: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-r.stop:
			for {
				select {
				case e := <-r.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-r.ch:
			batch = append(batch, e)
			if len(batch) >= cap(batch) {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
