// CLAUDE:SUMMARY Downloads the app icon and decodes it (PNG, JPEG, GIF, WebP) into an image.Image.
// Package artwork downloads and decodes the app icon shown by the widget.
package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/relwidget/netsafe"
)

// DefaultURL is the icon used when the lookup did not provide one.
const DefaultURL = "https://is1-ssl.mzstatic.com/image/thumb/Purple118/v4/b6/5d/7b/b65d7be5-e14a-433f-bb53-8cc2407e6199/AppIcon-1x_U007emarketing-85-220-9.png/512x512bb.jpg"

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // HTTP timeout. Default: 30s.
	MaxBytes int64         // Max image size. Default: 10MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch. Default: netsafe.ValidateURL.
	URLValidator netsafe.Validator
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "relwidget/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = netsafe.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Fetcher downloads icons.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher. Redirect targets are validated like the initial URL.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch downloads url (DefaultURL when empty) and decodes it.
// Network, status and decode failures are all returned; there is no
// fallback image.
func (f *Fetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	if url == "" {
		url = DefaultURL
	}
	if err := f.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("artwork: url blocked: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("artwork: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "image/png,image/jpeg,image/webp,image/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artwork: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("artwork: http %d", resp.StatusCode)
	}

	body, err := netsafe.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("artwork: read body: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("artwork: decode: %w", err)
	}

	b := img.Bounds()
	f.config.Logger.Debug("artwork: fetched",
		"url", url, "format", format, "width", b.Dx(), "height", b.Dy(), "size", len(body))
	return img, nil
}
