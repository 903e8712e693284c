package present

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/relwidget/dbopen"
	"github.com/hazyhaar/relwidget/kit"
	"github.com/hazyhaar/relwidget/slot"
	"github.com/hazyhaar/relwidget/widget"
)

type fakeHost struct {
	inWidget bool
	small    []*widget.Widget
	set      []*widget.Widget
	err      error
}

func (f *fakeHost) RunsInWidget() bool { return f.inWidget }

func (f *fakeHost) PresentSmall(_ context.Context, w *widget.Widget) error {
	f.small = append(f.small, w)
	return f.err
}

func (f *fakeHost) SetWidget(_ context.Context, w *widget.Widget) error {
	f.set = append(f.set, w)
	return f.err
}

func icon() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 200, 255
	}
	return img
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPresent_Preview(t *testing.T) {
	// WHAT: Outside a widget, only the small preview is shown.
	// WHY: Running the script in the app must not touch the home-screen slot.
	h := &fakeHost{}
	w := widget.Compose("2.2", icon(), true)
	if err := Present(context.Background(), w, h); err != nil {
		t.Fatal(err)
	}
	if len(h.small) != 1 || len(h.set) != 0 {
		t.Fatalf("small=%d set=%d, want 1/0", len(h.small), len(h.set))
	}
	if h.small[0] != w {
		t.Error("preview got a different tree")
	}
}

func TestPresent_InWidget(t *testing.T) {
	h := &fakeHost{inWidget: true}
	if err := Present(context.Background(), widget.Compose("2.1", icon(), false), h); err != nil {
		t.Fatal(err)
	}
	if len(h.small) != 0 || len(h.set) != 1 {
		t.Fatalf("small=%d set=%d, want 0/1", len(h.small), len(h.set))
	}
}

func TestPresent_HostError(t *testing.T) {
	boom := errors.New("boom")
	h := &fakeHost{inWidget: true, err: boom}
	err := Present(context.Background(), widget.Compose("2.1", icon(), false), h)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestPresent_Nil(t *testing.T) {
	if err := Present(context.Background(), nil, &fakeHost{}); err == nil {
		t.Error("nil tree: expected error")
	}
	if err := Present(context.Background(), widget.Compose("2.2", nil, true), nil); err == nil {
		t.Error("nil host: expected error")
	}
}

func TestMode(t *testing.T) {
	if Mode(&fakeHost{}) != "preview" || Mode(&fakeHost{inWidget: true}) != "widget" {
		t.Error("Mode mismatch")
	}
}

func TestPreview_Writer(t *testing.T) {
	var buf bytes.Buffer
	p := &Preview{Out: &buf, Logger: quiet()}
	if err := Present(context.Background(), widget.Compose("2.2", icon(), true), p); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 169 || img.Bounds().Dy() != 169 {
		t.Errorf("preview size = %v, want 169x169", img.Bounds())
	}
}

func TestPreview_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "widget.png")
	p := &Preview{Path: path, Scale: 2, Logger: quiet()}
	if err := p.PresentSmall(context.Background(), widget.Compose("2.2", icon(), true)); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 338 {
		t.Errorf("width = %d, want 338", cfg.Width)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestPreview_NoOutput(t *testing.T) {
	if err := (&Preview{}).PresentSmall(context.Background(), widget.Compose("2.2", nil, true)); err == nil {
		t.Fatal("expected error without path or writer")
	}
}

func TestSlotHost_SetWidget(t *testing.T) {
	store, err := slot.NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	h := &SlotHost{Store: store, SlotID: "home", InWidget: true, Logger: quiet()}

	ctx := kit.WithRunID(context.Background(), "run_42")
	ctx = WithRunInfo(ctx, RunInfo{Released: false, Desaturate: 90})
	if err := Present(ctx, widget.Compose("2.1", icon(), false), h); err != nil {
		t.Fatal(err)
	}

	rec, err := store.Get(context.Background(), "home")
	if err != nil {
		t.Fatal(err)
	}
	if rec.RunID != "run_42" || rec.Version != "2.1" || rec.Released || rec.Desaturate != 90 {
		t.Errorf("rec = %+v", rec)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(rec.PNG))
	if err != nil {
		t.Fatalf("stored png: %v", err)
	}
	if cfg.Width != 338 {
		t.Errorf("stored width = %d, want 338", cfg.Width)
	}

	var tree widget.Widget
	if err := json.Unmarshal(rec.Tree, &tree); err != nil {
		t.Fatalf("stored tree: %v", err)
	}
	if tree.VersionText() == nil || tree.VersionText().Content != "2.1" {
		t.Error("stored tree lost the version text")
	}
}

func TestSlotHost_PreviewWithoutOutput(t *testing.T) {
	h := &SlotHost{Logger: quiet()}
	if err := h.PresentSmall(context.Background(), widget.Compose("2.2", nil, true)); err != nil {
		t.Fatalf("preview without output should be a no-op: %v", err)
	}
}

