// CLAUDE:SUMMARY Manages the headless Chrome used as the annotation rendering context: launch, isolated pages, recycling.
// Package browser manages the headless Chrome that serves as the rendering
// context for icon annotation: start, connect via Rod, hand out isolated
// pages, recycle on interval or heap threshold.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome executable. Empty = launcher lookup/download.
	Bin string

	// NoSandbox disables the Chrome sandbox (containers running as root).
	NoSandbox bool

	// Stealth opens pages through go-rod/stealth.
	Stealth bool

	// MemoryLimit in bytes. Recycle Chrome when exceeded. Default: 512MB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration

	// MonitorInterval is how often lifetime and heap are checked. Default: 30s.
	MonitorInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 512 << 20
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages Chrome lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance) and starts the
// monitor goroutine, which stops with ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)
	return nil
}

// Browser returns the current Rod browser handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// CloseTimeout bounds tab teardown.
const CloseTimeout = 5 * time.Second

// Page is a tab living in its own incognito browser context. Closing it
// discards the context, so nothing survives between renders.
type Page struct {
	*rod.Page
	incognito *rod.Browser
	parent    context.Context
}

// closeContext detaches teardown from the render deadline: a page whose
// render timed out must still be closed in Chrome.
func closeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(parent), CloseTimeout)
}

// Close closes the tab and disposes its browser context. It runs on its own
// context, so it succeeds after the context passed to NewPage is done.
func (p *Page) Close() error {
	ctx, cancel := closeContext(p.parent)
	defer cancel()
	err := p.Page.Context(ctx).Close()
	if cerr := p.incognito.Context(ctx).Close(); err == nil {
		err = cerr
	}
	return err
}

// NewPage opens a blank tab in a fresh incognito context.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	inc, err := b.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito: %w", err)
	}

	var page *rod.Page
	if m.cfg.Stealth {
		page, err = stealth.Page(inc)
	} else {
		page, err = inc.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		cctx, cancel := closeContext(ctx)
		inc.Context(cctx).Close()
		cancel()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	return &Page{Page: page, incognito: inc, parent: ctx}, nil
}

// Recycle kills Chrome and restarts it.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	return m.recycleLocked()
}

// Close shuts down Chrome.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(true).Set("disable-gpu")
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked() error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))

	m.cleanup()

	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()

	log.Info("browser: recycled successfully")
	return nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			if m.closed || m.browser == nil {
				m.mu.RUnlock()
				return
			}
			b := m.browser
			startAt := m.startAt
			m.mu.RUnlock()

			if time.Since(startAt) > m.cfg.RecycleInterval {
				log.Info("browser: recycle interval reached")
				if err := m.Recycle(); err != nil {
					log.Error("browser: recycle failed", "error", err)
				}
				continue
			}

			used, err := jsHeapUsage(b)
			if err != nil {
				log.Debug("browser: heap check failed", "error", err)
				continue
			}
			if used > m.cfg.MemoryLimit {
				log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
				if err := m.Recycle(); err != nil {
					log.Error("browser: recycle failed", "error", err)
				}
			}
		}
	}
}

// jsHeapUsage sums the JS heap of every open page.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("no pages for heap check")
	}

	var total int64
	for _, p := range pages {
		res, err := p.Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
		if err != nil {
			return 0, err
		}
		total += int64(res.Value.Int())
	}
	return total, nil
}
