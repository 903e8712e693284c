package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.App.ID != 625334537 {
		t.Errorf("app id = %d", c.App.ID)
	}
	if c.App.TargetVersion != "2.2" {
		t.Errorf("target = %q", c.App.TargetVersion)
	}
	if c.App.URL != "itms-apps://itunes.apple.com/app/id625334537" {
		t.Errorf("url = %q", c.App.URL)
	}
	if c.Annotate.ReleasedDesaturation != 0 || c.Annotate.PendingDesaturation != 90 {
		t.Errorf("desaturation = %d/%d, want 0/90", c.Annotate.ReleasedDesaturation, c.Annotate.PendingDesaturation)
	}
	if c.Annotate.Timeout != 15*time.Second {
		t.Errorf("timeout = %v", c.Annotate.Timeout)
	}
	if c.Annotate.Renderer != RendererNative {
		t.Errorf("renderer = %q", c.Annotate.Renderer)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParse_Overrides(t *testing.T) {
	c, err := Parse([]byte(`
app:
  id: 42
  target_version: "3.0"
annotate:
  renderer: browser
  pending_desaturation: 0
  timeout: 2s
host:
  runs_in_widget: true
  slot_id: lock
log_level: debug
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.App.ID != 42 || c.App.TargetVersion != "3.0" {
		t.Errorf("app = %+v", c.App)
	}
	if c.App.URL != "itms-apps://itunes.apple.com/app/id42" {
		t.Errorf("url derived from id = %q", c.App.URL)
	}
	// WHAT: An explicit zero pending desaturation is kept.
	// WHY: 0 is a legal percentage, not "unset".
	if c.Annotate.PendingDesaturation != 0 {
		t.Errorf("pending = %d, want 0", c.Annotate.PendingDesaturation)
	}
	if c.Annotate.Timeout != 2*time.Second {
		t.Errorf("timeout = %v", c.Annotate.Timeout)
	}
	if !c.Host.RunsInWidget || c.Host.SlotID != "lock" {
		t.Errorf("host = %+v", c.Host)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte("app: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relwidget.yaml")
	os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0o644)
	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Addr != ":9999" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Server.DBPath != "relwidget.db" {
		t.Errorf("db default lost: %q", c.Server.DBPath)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	if c, err := LoadFile(""); err != nil || c.App.ID == 0 {
		t.Errorf("empty path: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RELWIDGET_LOG_LEVEL", "warn")
	t.Setenv("RELWIDGET_DB", "/tmp/x.db")
	t.Setenv("RELWIDGET_ADDR", ":1234")
	t.Setenv("RELWIDGET_CHROME_URL", "ws://chrome:9222")
	t.Setenv("RELWIDGET_RENDERER", "browser")

	c := Default()
	c.ApplyEnv()
	if c.LogLevel != "warn" || c.Server.DBPath != "/tmp/x.db" || c.Server.Addr != ":1234" {
		t.Errorf("env not applied: %+v", c)
	}
	if c.Browser.Remote != "ws://chrome:9222" || c.Annotate.Renderer != "browser" {
		t.Errorf("env not applied: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"desaturation high", func(c *Config) { c.Annotate.PendingDesaturation = 101 }, "pending_desaturation"},
		{"desaturation negative", func(c *Config) { c.Annotate.ReleasedDesaturation = -1 }, "released_desaturation"},
		{"renderer", func(c *Config) { c.Annotate.Renderer = "gpu" }, "renderer"},
		{"target", func(c *Config) { c.App.TargetVersion = "  " }, "target_version"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}
