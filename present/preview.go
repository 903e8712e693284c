package present

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazyhaar/relwidget/render"
	"github.com/hazyhaar/relwidget/widget"
)

// Preview writes a small-widget PNG to a file or a writer. SetWidget is
// treated as a preview too, so a Preview can stand in for any host.
type Preview struct {
	// Path is the output file. Ignored when Out is set.
	Path string
	// Out receives the PNG when non-nil.
	Out io.Writer
	// Scale is pixels per point; 0 means 1.
	Scale float64
	// InWidget is returned by RunsInWidget.
	InWidget bool
	Logger   *slog.Logger
}

func (p *Preview) RunsInWidget() bool { return p.InWidget }

func (p *Preview) PresentSmall(ctx context.Context, w *widget.Widget) error {
	return p.write(ctx, w)
}

func (p *Preview) SetWidget(ctx context.Context, w *widget.Widget) error {
	return p.write(ctx, w)
}

func (p *Preview) write(ctx context.Context, w *widget.Widget) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	r := render.Renderer{Size: render.SmallSize, Scale: scale}

	if p.Out != nil {
		return r.RenderPNG(w, p.Out)
	}
	if p.Path == "" {
		return fmt.Errorf("preview: no output path")
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("preview: mkdir: %w", err)
	}

	tmp := p.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("preview: create: %w", err)
	}
	if err := r.RenderPNG(w, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("preview: close: %w", err)
	}
	if err := os.Rename(tmp, p.Path); err != nil {
		return fmt.Errorf("preview: rename: %w", err)
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("present: preview written", "path", p.Path, "scale", scale)
	return nil
}
