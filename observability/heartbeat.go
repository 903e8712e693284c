package observability

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"
)

// HeartbeatWriter records that a long-running refresher is alive, with the
// id of the last run it completed.
type HeartbeatWriter struct {
	db         *sql.DB
	workerName string
	hostname   string
	pid        int
	interval   time.Duration
	logger     *slog.Logger
	lastRun    atomic.Value // string
}

// NewHeartbeatWriter creates a writer. Recommended interval: 30s.
func NewHeartbeatWriter(db *sql.DB, workerName string, interval time.Duration, logger *slog.Logger) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	hw := &HeartbeatWriter{
		db:         db,
		workerName: workerName,
		hostname:   hostname,
		pid:        os.Getpid(),
		interval:   interval,
		logger:     logger,
	}
	hw.lastRun.Store("")
	return hw
}

// SetLastRun records the id reported by the next heartbeats.
func (hw *HeartbeatWriter) SetLastRun(runID string) { hw.lastRun.Store(runID) }

// Write inserts one heartbeat row.
func (hw *HeartbeatWriter) Write(ctx context.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, err := hw.db.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (
			worker_name, hostname, worker_pid, timestamp,
			goroutines_count, memory_alloc_mb, last_run_id
		) VALUES (?,?,?,?,?,?,?)`,
		hw.workerName, hw.hostname, hw.pid, time.Now().UnixMilli(),
		runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024, hw.lastRun.Load().(string))
	if err != nil {
		return fmt.Errorf("observability: insert heartbeat: %w", err)
	}
	return nil
}

// Run writes a heartbeat immediately, then every interval, until ctx is done.
func (hw *HeartbeatWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()
	for {
		if err := hw.Write(ctx); err != nil && ctx.Err() == nil {
			hw.logger.Error("observability: heartbeat write failed", "error", err, "worker", hw.workerName)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// HeartbeatStatus is the latest heartbeat of a worker.
type HeartbeatStatus struct {
	WorkerName string    `json:"worker_name"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	Timestamp  time.Time `json:"timestamp"`
	LastRunID  string    `json:"last_run_id"`
	Alive      bool      `json:"alive"`
}

// LatestHeartbeat returns the newest heartbeat for workerName, or nil when
// none has been written. Alive is false once the beat is older than
// staleness.
func LatestHeartbeat(ctx context.Context, db *sql.DB, workerName string, staleness time.Duration) (*HeartbeatStatus, error) {
	var (
		hs HeartbeatStatus
		ts int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT worker_name, hostname, worker_pid, timestamp, last_run_id
		FROM worker_heartbeats
		WHERE worker_name = ?
		ORDER BY timestamp DESC LIMIT 1`, workerName).
		Scan(&hs.WorkerName, &hs.Hostname, &hs.PID, &ts, &hs.LastRunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("observability: latest heartbeat: %w", err)
	}
	hs.Timestamp = time.UnixMilli(ts)
	hs.Alive = time.Since(hs.Timestamp) <= staleness
	return &hs, nil
}
