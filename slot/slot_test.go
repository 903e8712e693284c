package slot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/relwidget/dbopen"
	"github.com/hazyhaar/relwidget/observability"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sample(id, version string, at int64) *Record {
	return &Record{
		SlotID:    id,
		RunID:     "run_" + id,
		Version:   version,
		Released:  version == "2.2",
		Tree:      json.RawMessage(`{"stacks":[]}`),
		PNG:       append(append([]byte{}, pngMagic...), 1, 2, 3),
		UpdatedAt: at,
	}
}

func TestNewStore_NilDB(t *testing.T) {
	if _, err := NewStore(nil); err == nil {
		t.Fatal("expected error for nil DB")
	}
}

func TestStore_PutGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, sample("home", "2.2", 0)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "home")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "2.2" || !got.Released || got.RunID != "run_home" {
		t.Errorf("got %+v", got)
	}
	if !bytes.HasPrefix(got.PNG, pngMagic) {
		t.Error("PNG not round-tripped")
	}
	if got.UpdatedAt == 0 {
		t.Error("UpdatedAt not stamped")
	}
}

func TestStore_PutReplaces(t *testing.T) {
	// WHAT: A second Put on the same slot replaces the widget.
	// WHY: A slot shows one widget; refreshes overwrite it.
	s := newStore(t)
	ctx := context.Background()

	s.Put(ctx, sample("home", "2.1", 1))
	if err := s.Put(ctx, sample("home", "2.2", 2)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "home")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "2.2" {
		t.Errorf("version = %q, want 2.2", got.Version)
	}
	recs, _ := s.List(ctx)
	if len(recs) != 1 {
		t.Errorf("slots = %d, want 1", len(recs))
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ListOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	s.Put(ctx, sample("a", "2.1", 100))
	s.Put(ctx, sample("b", "2.2", 300))
	s.Put(ctx, sample("c", "2.1", 200))

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b", "c", "a"}
	if len(recs) != len(want) {
		t.Fatalf("len = %d", len(recs))
	}
	for i, id := range want {
		if recs[i].SlotID != id {
			t.Errorf("recs[%d] = %s, want %s", i, recs[i].SlotID, id)
		}
		if recs[i].PNG != nil || recs[i].Tree != nil {
			t.Errorf("list should omit tree and png")
		}
	}
}

func TestStore_PutRequiresSlotID(t *testing.T) {
	s := newStore(t)
	if err := s.Put(context.Background(), &Record{}); err == nil {
		t.Fatal("expected error")
	}
}

func newTestServer(t *testing.T, refresh RefreshFunc) (*Server, *Store) {
	t.Helper()
	st := newStore(t)
	return NewServer(st, refresh, quiet()), st
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandler_Health(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := do(srv.Handler(), http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestHandler_Slots(t *testing.T) {
	srv, st := newTestServer(t, nil)
	st.Put(context.Background(), sample("home", "2.2", time.Now().UnixMilli()))
	h := srv.Handler()

	rec := do(h, http.MethodGet, "/slots")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d: %s", rec.Code, rec.Body)
	}
	var list []Record
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].SlotID != "home" {
		t.Errorf("list = %+v", list)
	}

	rec = do(h, http.MethodGet, "/slots/home")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	var got map[string]any
	json.NewDecoder(rec.Body).Decode(&got)
	if got["version"] != "2.2" {
		t.Errorf("version = %v", got["version"])
	}
	if _, ok := got["png"]; ok {
		t.Error("JSON record must not carry the PNG")
	}

	rec = do(h, http.MethodGet, "/slots/home/widget.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("png = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), pngMagic) {
		t.Error("body is not the stored PNG")
	}
}

func TestHandler_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()
	for _, p := range []string{"/slots/missing", "/slots/missing/widget.png"} {
		if rec := do(h, http.MethodGet, p); rec.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", p, rec.Code)
		}
	}
}

func TestHandler_Refresh(t *testing.T) {
	calls := 0
	srv, _ := newTestServer(t, func(ctx context.Context) (*RefreshResult, error) {
		calls++
		return &RefreshResult{RunID: "run_1", Version: "2.2", Released: true, Presented: "widget"}, nil
	})
	rec := do(srv.Handler(), http.MethodPost, "/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d", rec.Code)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}

	srv, _ = newTestServer(t, nil)
	if rec := do(srv.Handler(), http.MethodPost, "/refresh"); rec.Code != http.StatusNotImplemented {
		t.Errorf("nil refresh = %d, want 501", rec.Code)
	}
}

func mcpSession(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "slot-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(impl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_SlotGetAndList(t *testing.T) {
	srv, st := newTestServer(t, nil)
	st.Put(context.Background(), sample("home", "2.2", 5))
	session := mcpSession(t, srv)

	text, isErr := mcpCallTool(t, session, "relwidget_slot_get", map[string]any{"slot_id": "home"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var rec Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Version != "2.2" || !rec.Released {
		t.Errorf("rec = %+v", rec)
	}

	text, isErr = mcpCallTool(t, session, "relwidget_slot_list", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var list struct {
		Slots []Record `json:"slots"`
	}
	json.Unmarshal([]byte(text), &list)
	if len(list.Slots) != 1 {
		t.Errorf("slots = %d", len(list.Slots))
	}
}

func TestMCP_SlotGetMissing(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	session := mcpSession(t, srv)
	if _, isErr := mcpCallTool(t, session, "relwidget_slot_get", map[string]any{"slot_id": "nope"}); !isErr {
		t.Fatal("expected tool error for missing slot")
	}
}

func TestMCP_Refresh(t *testing.T) {
	srv, _ := newTestServer(t, func(ctx context.Context) (*RefreshResult, error) {
		return &RefreshResult{RunID: "run_7", Version: "?.?", Desaturate: 90, Presented: "preview"}, nil
	})
	session := mcpSession(t, srv)

	text, isErr := mcpCallTool(t, session, "relwidget_refresh", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var res RefreshResult
	json.Unmarshal([]byte(text), &res)
	if res.RunID != "run_7" || res.Desaturate != 90 {
		t.Errorf("res = %+v", res)
	}
}

type fakeRuns struct{ limit int }

func (f *fakeRuns) Recent(_ context.Context, limit int) ([]observability.RunEntry, error) {
	f.limit = limit
	return []observability.RunEntry{{RunID: "run_1", Status: observability.StatusSuccess, Version: "2.2"}}, nil
}

func TestHandler_Runs(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	if rec := do(srv.Handler(), http.MethodGet, "/runs"); rec.Code != http.StatusNotImplemented {
		t.Errorf("without run log = %d, want 501", rec.Code)
	}

	runs := &fakeRuns{}
	srv.WithRuns(runs)
	rec := do(srv.Handler(), http.MethodGet, "/runs?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("runs = %d", rec.Code)
	}
	if runs.limit != 5 {
		t.Errorf("limit = %d, want 5", runs.limit)
	}
	var got []observability.RunEntry
	json.NewDecoder(rec.Body).Decode(&got)
	if len(got) != 1 || got[0].RunID != "run_1" {
		t.Errorf("got %+v", got)
	}
}

func TestMCP_Runs(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	runs := &fakeRuns{}
	session := mcpSession(t, srv.WithRuns(runs))

	text, isErr := mcpCallTool(t, session, "relwidget_runs", map[string]any{"limit": 3})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	if runs.limit != 3 {
		t.Errorf("limit = %d", runs.limit)
	}
}
