package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.MemoryLimit != 512<<20 {
		t.Errorf("memory limit: %d", c.MemoryLimit)
	}
	if c.RecycleInterval != 4*time.Hour {
		t.Errorf("recycle interval: %v", c.RecycleInterval)
	}
	if c.MonitorInterval != 30*time.Second {
		t.Errorf("monitor interval: %v", c.MonitorInterval)
	}
	if c.Logger == nil {
		t.Error("logger not defaulted")
	}
}

func TestNewPage_NotStarted(t *testing.T) {
	m := NewManager(Config{})
	if _, err := m.NewPage(context.Background()); err == nil {
		t.Fatal("expected error before Start")
	}
}

func TestCloseContext_OutlivesParent(t *testing.T) {
	// WHAT: The teardown context stays live after the render context is cancelled.
	// WHY: A timed-out render must still release its tab and incognito context.
	type key struct{}
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "run_1"))
	cancel()

	ctx, done := closeContext(parent)
	defer done()
	if err := ctx.Err(); err != nil {
		t.Fatalf("teardown context already done: %v", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > CloseTimeout {
		t.Fatalf("teardown deadline not bounded: %v %v", deadline, ok)
	}
	if ctx.Value(key{}) != "run_1" {
		t.Error("teardown context lost parent values")
	}

	nilCtx, done2 := closeContext(nil)
	defer done2()
	if nilCtx.Err() != nil {
		t.Error("nil parent should yield a live context")
	}
}

func TestStart_AfterClose(t *testing.T) {
	m := NewManager(Config{})
	m.Close()
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error after Close")
	}
	if err := m.Recycle(); err == nil {
		t.Fatal("expected recycle error after Close")
	}
}

func TestManager_PagesAreIsolated(t *testing.T) {
	// WHAT: State set in one page is not visible in the next.
	// WHY: Each annotation must run in a fresh rendering context.
	if testing.Short() {
		t.Skip("browser test in -short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local Chrome found")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(Config{Bin: bin, NoSandbox: true})
	if err := m.Start(ctx); err != nil {
		t.Skipf("chrome did not start: %v", err)
	}
	defer m.Close()

	p1, err := m.NewPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer p1.Close()
	p2, err := m.NewPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()

	if p1.incognito.BrowserContextID == "" || p1.incognito.BrowserContextID == p2.incognito.BrowserContextID {
		t.Fatalf("pages share a browser context: %q / %q",
			p1.incognito.BrowserContextID, p2.incognito.BrowserContextID)
	}
}

func TestPage_CloseAfterRenderDeadline(t *testing.T) {
	// WHAT: Close disposes the tab even when the context it was opened with is done.
	// WHY: Each annotation timeout would otherwise leave a tab in Chrome until recycle.
	if testing.Short() {
		t.Skip("browser test in -short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local Chrome found")
	}
	m := NewManager(Config{Bin: bin, NoSandbox: true})
	if err := m.Start(context.Background()); err != nil {
		t.Skipf("chrome did not start: %v", err)
	}
	defer m.Close()

	renderCtx, cancel := context.WithCancel(context.Background())
	p, err := m.NewPage(renderCtx)
	if err != nil {
		t.Fatal(err)
	}
	target := p.TargetID
	cancel()

	if err := p.Close(); err != nil {
		t.Fatalf("close after cancel: %v", err)
	}
	pages, err := m.Browser().Pages()
	if err != nil {
		t.Fatal(err)
	}
	for _, pg := range pages {
		if pg.TargetID == target {
			t.Fatal("tab still open after Close")
		}
	}
}
