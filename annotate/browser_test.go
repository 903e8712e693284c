package annotate

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/relwidget/internal/browser"
)

// chromeManager starts a local headless Chrome or skips the test.
func chromeManager(t *testing.T) *browser.Manager {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test in -short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local Chrome found")
	}
	mgr := browser.NewManager(browser.Config{Bin: bin, NoSandbox: true})
	ctx, cancel := context.WithCancel(context.Background())
	if err := mgr.Start(ctx); err != nil {
		cancel()
		t.Skipf("chrome did not start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		mgr.Close()
	})
	return mgr
}

func TestBrowser_Grayscale(t *testing.T) {
	// WHAT: The Chrome canvas path keeps dimensions and fully desaturates at 100%.
	// WHY: Browser is the production rendering context.
	mgr := chromeManager(t)
	tf := NewBrowser(mgr, nil)

	src := solid(96, 64, color.NRGBA{255, 0, 0, 255})
	out, err := Bounded(context.Background(), tf, src, Params{Desaturate: 100}, 20*time.Second)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 96 || b.Dy() != 64 {
		t.Fatalf("bounds: %v", b)
	}
	r, g, b, _ := out.At(10, 10).RGBA()
	if d := int(r>>8) - int(b>>8); d > 2 || d < -2 || int(r>>8)-int(g>>8) > 2 || int(g>>8)-int(r>>8) > 2 {
		t.Fatalf("not gray: %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestBrowser_ZeroKeepsColour(t *testing.T) {
	mgr := chromeManager(t)
	tf := NewBrowser(mgr, nil)

	out, err := Bounded(context.Background(), tf, solid(64, 64, color.NRGBA{255, 0, 0, 255}), Params{Desaturate: 0, Stamp: "(12:00:00)"}, 20*time.Second)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	r, g, b, _ := out.At(5, 5).RGBA()
	if r>>8 < 250 || g>>8 > 5 || b>>8 > 5 {
		t.Fatalf("colour lost: %d %d %d", r>>8, g>>8, b>>8)
	}
}
