// Package shield provides the HTTP middleware stack for the slot server:
// panic recovery, HEAD on GET routes, API security headers and request ids
// with a per-request logger.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the middleware for a chi router, outermost first:
// Recover, chi GetHead, APIHeaders, RequestID.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	stack := []func(http.Handler) http.Handler{Recover(logger), middleware.GetHead}
	stack = append(stack, APIHeaders()...)
	return append(stack, RequestID(logger))
}

// Recover turns a handler panic into a 500 and logs it.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("shield: panic", "path", r.URL.Path, "panic", v)
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
