// Package config loads relwidget configuration from YAML, the environment
// and command-line flags, in that order of precedence (flags win).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Renderer names.
const (
	RendererNative  = "native"
	RendererBrowser = "browser"
)

// Config is the top-level relwidget configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Annotate AnnotateConfig `yaml:"annotate"`
	Browser  BrowserConfig  `yaml:"browser"`
	Host     HostConfig     `yaml:"host"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"` // debug | info | warn | error
}

// AppConfig identifies the tracked app and the release being waited for.
type AppConfig struct {
	ID            int64         `yaml:"id"`
	LookupBaseURL string        `yaml:"lookup_base_url"`
	Country       string        `yaml:"country"`
	TargetVersion string        `yaml:"target_version"`
	URL           string        `yaml:"url"`         // tap-through target
	ArtworkURL    string        `yaml:"artwork_url"` // used when the lookup has none
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
}

// AnnotateConfig controls icon desaturation and stamping.
type AnnotateConfig struct {
	Renderer             string        `yaml:"renderer"` // native | browser
	ReleasedDesaturation int           `yaml:"released_desaturation"`
	PendingDesaturation  int           `yaml:"pending_desaturation"`
	Timeout              time.Duration `yaml:"timeout"`
}

// BrowserConfig controls the Chrome used by the browser renderer.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Bin             string        `yaml:"bin"`
	NoSandbox       bool          `yaml:"no_sandbox"`
	Stealth         bool          `yaml:"stealth"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
}

// HostConfig selects where the widget is presented.
type HostConfig struct {
	RunsInWidget    bool          `yaml:"runs_in_widget"`
	SlotID          string        `yaml:"slot_id"`
	PreviewPath     string        `yaml:"preview_path"`
	PreviewScale    float64       `yaml:"preview_scale"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ServerConfig controls the slot store and its HTTP surface.
type ServerConfig struct {
	DBPath   string `yaml:"db_path"`
	Addr     string `yaml:"addr"`
	TraceSQL bool   `yaml:"trace_sql"` // log every statement via the sqlite-trace driver
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := preset()
	c.applyDefaults()
	return c
}

// preset holds defaults whose zero value is a valid setting, so they are
// set before decoding rather than after.
func preset() *Config {
	return &Config{
		Annotate: AnnotateConfig{PendingDesaturation: 90},
	}
}

// LoadFile reads a YAML configuration file and applies defaults.
// An empty path yields Default().
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := preset()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.ID == 0 {
		c.App.ID = 625334537
	}
	if c.App.LookupBaseURL == "" {
		c.App.LookupBaseURL = "https://itunes.apple.com/lookup"
	}
	if c.App.TargetVersion == "" {
		c.App.TargetVersion = "2.2"
	}
	if c.App.URL == "" {
		c.App.URL = fmt.Sprintf("itms-apps://itunes.apple.com/app/id%d", c.App.ID)
	}
	if c.App.FetchTimeout <= 0 {
		c.App.FetchTimeout = 30 * time.Second
	}
	if c.Annotate.Renderer == "" {
		c.Annotate.Renderer = RendererNative
	}
	if c.Annotate.Timeout <= 0 {
		c.Annotate.Timeout = 15 * time.Second
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 512 << 20
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Host.SlotID == "" {
		c.Host.SlotID = "small"
	}
	if c.Host.PreviewPath == "" {
		c.Host.PreviewPath = "widget.png"
	}
	if c.Host.PreviewScale <= 0 {
		c.Host.PreviewScale = 1
	}
	if c.Host.RefreshInterval <= 0 {
		c.Host.RefreshInterval = 15 * time.Minute
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "relwidget.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8087"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ApplyEnv overrides fields from RELWIDGET_* environment variables.
func (c *Config) ApplyEnv() {
	c.LogLevel = env("RELWIDGET_LOG_LEVEL", c.LogLevel)
	c.Server.DBPath = env("RELWIDGET_DB", c.Server.DBPath)
	c.Server.Addr = env("RELWIDGET_ADDR", c.Server.Addr)
	c.Browser.Remote = env("RELWIDGET_CHROME_URL", c.Browser.Remote)
	c.Annotate.Renderer = env("RELWIDGET_RENDERER", c.Annotate.Renderer)
}

// Validate checks that values are in range.
func (c *Config) Validate() error {
	if c.App.ID <= 0 {
		return fmt.Errorf("config: app.id must be > 0")
	}
	if strings.TrimSpace(c.App.TargetVersion) == "" {
		return fmt.Errorf("config: app.target_version is required")
	}
	for name, v := range map[string]int{
		"released_desaturation": c.Annotate.ReleasedDesaturation,
		"pending_desaturation":  c.Annotate.PendingDesaturation,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("config: annotate.%s must be in [0,100], got %d", name, v)
		}
	}
	switch c.Annotate.Renderer {
	case RendererNative, RendererBrowser:
	default:
		return fmt.Errorf("config: unknown renderer %q", c.Annotate.Renderer)
	}
	if c.Host.PreviewScale > 8 {
		return fmt.Errorf("config: host.preview_scale must be <= 8")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", s)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
