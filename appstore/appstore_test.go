package appstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/relwidget/netsafe"
)

func lookupServer(t *testing.T, status int, body string) (*httptest.Server, *string) {
	t.Helper()
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &gotQuery
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	base := []Option{WithBaseURL(srv.URL), WithURLValidator(netsafe.AllowAll)}
	return New(append(base, opts...)...)
}

func TestLookup_FirstResult(t *testing.T) {
	// WHAT: The first result is returned with version and artwork URL.
	// WHY: Only version and artworkUrl512 drive the widget.
	srv, query := lookupServer(t, 200, `{
		"resultCount": 2,
		"results": [
			{"version": "2.2", "artworkUrl512": "https://example.com/icon.png", "trackName": "Geometry Dash", "bundleId": "com.robtop.geometryjump"},
			{"version": "1.0", "artworkUrl512": "https://example.com/other.png"}
		]
	}`)

	info, err := newTestClient(srv).Lookup(context.Background(), "625334537")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if info.Version != "2.2" {
		t.Errorf("version: got %q", info.Version)
	}
	if info.ArtworkURL512 != "https://example.com/icon.png" {
		t.Errorf("artwork: got %q", info.ArtworkURL512)
	}
	if info.TrackName != "Geometry Dash" {
		t.Errorf("track: got %q", info.TrackName)
	}
	if !strings.Contains(string(info.Raw), "com.robtop.geometryjump") {
		t.Errorf("raw record not kept verbatim: %s", info.Raw)
	}
	if *query != "id=625334537" {
		t.Errorf("query: got %q", *query)
	}
	if info.Empty() {
		t.Error("non-empty record reported as empty")
	}
}

func TestLookup_ZeroResults(t *testing.T) {
	// WHAT: resultCount 0 yields an empty record, no error, and a log line.
	// WHY: Lookup-empty is a degraded success, rendered as "?.?".
	srv, _ := lookupServer(t, 200, `{"resultCount": 0, "results": []}`)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	info, err := newTestClient(srv, WithLogger(logger)).Lookup(context.Background(), "1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !info.Empty() {
		t.Errorf("expected empty record, got %+v", info)
	}
	if !strings.Contains(logs.String(), "app not found") {
		t.Errorf("expected diagnostic log, got %q", logs.String())
	}
}

func TestLookup_Malformed(t *testing.T) {
	srv, _ := lookupServer(t, 200, `<html>not json</html>`)

	_, err := newTestClient(srv).Lookup(context.Background(), "1")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestLookup_HTTPError(t *testing.T) {
	srv, _ := lookupServer(t, 503, `unavailable`)

	_, err := newTestClient(srv).Lookup(context.Background(), "1")
	if err == nil || !strings.Contains(err.Error(), "http 503") {
		t.Fatalf("got %v, want http 503 error", err)
	}
}

func TestLookup_Country(t *testing.T) {
	srv, query := lookupServer(t, 200, `{"resultCount": 0}`)

	if _, err := newTestClient(srv, WithCountry("fr")).Lookup(context.Background(), "42"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if *query != "country=fr&id=42" {
		t.Errorf("query: got %q", *query)
	}
}

func TestLookup_BlockedURL(t *testing.T) {
	// WHAT: The default validator refuses loopback lookup URLs.
	// WHY: The lookup URL is configurable.
	c := New(WithBaseURL("http://127.0.0.1:9/lookup"))
	_, err := c.Lookup(context.Background(), "1")
	if !errors.Is(err, netsafe.ErrSSRF) {
		t.Fatalf("got %v, want ErrSSRF", err)
	}
}

func TestLookup_RedirectValidated(t *testing.T) {
	// WHAT: A redirect to a target the validator refuses fails the lookup.
	// WHY: An allowed lookup host must not bounce the request to an internal address.
	internal, _ := lookupServer(t, http.StatusOK, `{"resultCount":1,"results":[{"version":"9.9"}]}`)
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/lookup", http.StatusFound)
	}))
	t.Cleanup(front.Close)

	validate := func(raw string) error {
		if strings.HasPrefix(raw, internal.URL) {
			return netsafe.ErrSSRF
		}
		return nil
	}
	c := New(WithBaseURL(front.URL), WithURLValidator(validate))
	_, err := c.Lookup(context.Background(), "1")
	if !errors.Is(err, netsafe.ErrSSRF) {
		t.Fatalf("got %v, want ErrSSRF", err)
	}
}
