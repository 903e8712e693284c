// CLAUDE:SUMMARY iTunes lookup client: fetches app metadata, returns an empty AppInfo when the store reports zero results.
// Package appstore fetches app metadata from the iTunes lookup endpoint.
//
// A lookup that reports zero results is not an error: Lookup logs it and
// returns an empty AppInfo so the widget can render its "unknown version"
// state.
package appstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hazyhaar/relwidget/netsafe"
)

// DefaultBaseURL is the iTunes lookup endpoint.
const DefaultBaseURL = "https://itunes.apple.com/lookup"

// ErrMalformed is returned when the lookup body is not a JSON lookup payload.
var ErrMalformed = errors.New("appstore: malformed lookup response")

// AppInfo is the first result of a lookup. The zero value is the empty
// record returned when the app is not found.
type AppInfo struct {
	Version                   string `json:"version"`
	ArtworkURL512             string `json:"artworkUrl512"`
	TrackName                 string `json:"trackName"`
	BundleID                  string `json:"bundleId"`
	TrackViewURL              string `json:"trackViewUrl"`
	CurrentVersionReleaseDate string `json:"currentVersionReleaseDate"`
	ReleaseNotes              string `json:"releaseNotes"`

	// Raw is the verbatim result record.
	Raw json.RawMessage `json:"-"`
}

// Empty reports whether the record is the lookup-empty placeholder.
func (a AppInfo) Empty() bool {
	return a.Version == "" && a.ArtworkURL512 == "" && len(a.Raw) == 0
}

type lookupResponse struct {
	ResultCount int               `json:"resultCount"`
	Results     []json.RawMessage `json:"results"`
}

// Client performs lookups.
type Client struct {
	client   *http.Client
	baseURL  string
	country  string
	maxBytes int64
	validate netsafe.Validator
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithBaseURL overrides the lookup endpoint.
func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = u }
}

// WithCountry restricts the lookup to a storefront (two-letter code).
func WithCountry(cc string) Option {
	return func(cl *Client) { cl.country = cc }
}

// WithURLValidator sets the URL check run before each request.
// Default: netsafe.ValidateURL.
func WithURLValidator(v netsafe.Validator) Option {
	return func(cl *Client) { cl.validate = v }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client with sensible defaults. Unless WithHTTPClient is
// given, redirect targets go through the same validator as the lookup URL.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		maxBytes: 2 << 20,
		validate: netsafe.ValidateURL,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second, CheckRedirect: c.checkRedirect}
	}
	return c
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return fmt.Errorf("too many redirects (%d)", len(via))
	}
	if err := c.validate(req.URL.String()); err != nil {
		return fmt.Errorf("redirect blocked: %w", err)
	}
	return nil
}

// Lookup queries the store for appID.
func (c *Client) Lookup(ctx context.Context, appID string) (AppInfo, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return AppInfo{}, fmt.Errorf("appstore: base url: %w", err)
	}
	q := u.Query()
	q.Set("id", appID)
	if c.country != "" {
		q.Set("country", c.country)
	}
	u.RawQuery = q.Encode()
	return c.LookupURL(ctx, u.String())
}

// LookupURL GETs a fully formed lookup URL and returns its first result.
func (c *Client) LookupURL(ctx context.Context, lookupURL string) (AppInfo, error) {
	if err := c.validate(lookupURL); err != nil {
		return AppInfo{}, fmt.Errorf("appstore: url blocked: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return AppInfo{}, fmt.Errorf("appstore: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return AppInfo{}, fmt.Errorf("appstore: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AppInfo{}, fmt.Errorf("appstore: http %d", resp.StatusCode)
	}

	body, err := netsafe.LimitedReadAll(resp.Body, c.maxBytes)
	if err != nil {
		return AppInfo{}, fmt.Errorf("appstore: read body: %w", err)
	}

	info, err := parse(body)
	if err != nil {
		return AppInfo{}, err
	}
	if info.Empty() {
		c.logger.Warn("appstore: app not found in the App Store", "url", lookupURL)
		return AppInfo{}, nil
	}

	c.logger.Debug("appstore: lookup ok",
		"url", lookupURL, "version", info.Version, "track", info.TrackName)
	return info, nil
}

func parse(body []byte) (AppInfo, error) {
	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return AppInfo{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if lr.ResultCount == 0 || len(lr.Results) == 0 {
		return AppInfo{}, nil
	}

	first := lr.Results[0]
	var info AppInfo
	if err := json.Unmarshal(first, &info); err != nil {
		return AppInfo{}, fmt.Errorf("%w: result: %v", ErrMalformed, err)
	}
	info.Raw = append(json.RawMessage(nil), first...)
	return info, nil
}
