package slot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/relwidget/observability"
	"github.com/hazyhaar/relwidget/shield"
)

// RefreshResult summarises a refresh triggered through the server.
type RefreshResult struct {
	RunID      string `json:"run_id"`
	SlotID     string `json:"slot_id,omitempty"`
	Version    string `json:"version"`
	Released   bool   `json:"released"`
	Desaturate int    `json:"desaturate"`
	Presented  string `json:"presented"` // "widget" or "preview"
}

// RefreshFunc runs the pipeline once.
type RefreshFunc func(ctx context.Context) (*RefreshResult, error)

// RunLister lists recent pipeline runs.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]observability.RunEntry, error)
}

// Server exposes a Store over HTTP and MCP.
type Server struct {
	store   *Store
	refresh RefreshFunc
	runs    RunLister
	logger  *slog.Logger
}

// NewServer builds a Server. refresh may be nil, in which case the refresh
// routes and tool report that refreshing is unavailable.
func NewServer(store *Store, refresh RefreshFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, refresh: refresh, logger: logger}
}

// WithRuns enables the run history route and tool.
func (s *Server) WithRuns(r RunLister) *Server {
	s.runs = r
	return s
}

// Handler returns the chi router serving the slot API.
//
//	GET  /healthz
//	GET  /slots
//	GET  /slots/{id}
//	GET  /slots/{id}/widget.png
//	GET  /runs?limit=N
//	POST /refresh
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.logger) {
		r.Use(mw)
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/slots", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/widget.png", s.handlePNG)
	})
	r.Get("/runs", s.handleRuns)
	r.Post("/refresh", s.handleRefresh)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePNG(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.PNG)))
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(rec.PNG)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "run history unavailable"})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "refresh unavailable"})
		return
	}
	res, err := s.refresh(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	shield.GetLogger(r.Context()).Error("slot: request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
