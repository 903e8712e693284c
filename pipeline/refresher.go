package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Refresher re-runs a pipeline on a fixed interval, the way a widget host
// refreshes its widgets. Failures are logged and the next tick retries.
type Refresher struct {
	Pipeline *Pipeline
	Interval time.Duration
	Logger   *slog.Logger
	// OnResult, when set, is called after each successful run.
	OnResult func(*Result)
}

// Run blocks until ctx is cancelled. The first refresh happens immediately.
func (r *Refresher) Run(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	r.once(ctx, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.once(ctx, logger)
		}
	}
}

func (r *Refresher) once(ctx context.Context, logger *slog.Logger) {
	res, err := r.Pipeline.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("pipeline: refresh failed", "error", err)
		}
		return
	}
	if r.OnResult != nil {
		r.OnResult(res)
	}
}
