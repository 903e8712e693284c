// Package trace provides transparent SQL tracing for modernc.org/sqlite.
//
// It registers a "sqlite-trace" driver that wraps the standard "sqlite"
// driver and logs every Exec and Query through slog. Switching the driver
// name is the only change needed:
//
//	db, _ := dbopen.Open("relwidget.db", dbopen.WithDriver(trace.DriverName))
//
// Levels adapt to the outcome: Debug, Warn past SlowThreshold, Error on
// failure. Run and request ids are read from the context (kit.GetRunID,
// kit.GetRequestID) so statements correlate with the refresh or HTTP call
// that issued them.
package trace

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the database/sql name of the tracing driver.
const DriverName = "sqlite-trace"

// SlowThreshold is the duration past which a statement logs at Warn.
const SlowThreshold = 100 * time.Millisecond

var (
	logger   *slog.Logger
	loggerMu sync.RWMutex
)

// SetLogger sets the logger used by the driver. nil restores slog.Default().
func SetLogger(l *slog.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

func getLogger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func init() {
	sql.Register(DriverName, &TracingDriver{
		Driver: &sqlite.Driver{},
	})
}
