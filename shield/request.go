package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/relwidget/idgen"
	"github.com/hazyhaar/relwidget/kit"
)

var newRequestID = idgen.Prefixed("req_", idgen.UUIDv7())

// RequestID tags each request with an id, echoes it in X-Request-ID, and
// attaches a per-request logger carrying it.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := newRequestID()
			w.Header().Set("X-Request-ID", id)

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			l := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx = context.WithValue(ctx, LoggerKey, l)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			l.Debug("shield: request", "duration", time.Since(start))
		})
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
