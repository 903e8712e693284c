package present

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/relwidget/kit"
	"github.com/hazyhaar/relwidget/render"
	"github.com/hazyhaar/relwidget/slot"
	"github.com/hazyhaar/relwidget/widget"
)

// SlotHost stores the widget in a slot.Store. Previews go to Preview when
// set and are dropped with a log line otherwise.
type SlotHost struct {
	Store    *slot.Store
	SlotID   string
	Scale    float64 // pixels per point; 0 means 2
	InWidget bool
	Preview  *Preview
	Logger   *slog.Logger
}

func (h *SlotHost) RunsInWidget() bool { return h.InWidget }

func (h *SlotHost) PresentSmall(ctx context.Context, w *widget.Widget) error {
	if h.Preview != nil {
		return h.Preview.PresentSmall(ctx, w)
	}
	h.logger().Info("present: preview requested without preview output", "slot_id", h.SlotID)
	return nil
}

// SetWidget renders w and upserts it as the slot record. The run id and
// RunInfo are taken from ctx.
func (h *SlotHost) SetWidget(ctx context.Context, w *widget.Widget) error {
	if h.Store == nil {
		return fmt.Errorf("slot host: no store")
	}
	scale := h.Scale
	if scale <= 0 {
		scale = 2
	}

	var buf bytes.Buffer
	if err := (render.Renderer{Size: render.SmallSize, Scale: scale}).RenderPNG(w, &buf); err != nil {
		return err
	}
	tree, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("slot host: marshal tree: %w", err)
	}

	rec := &slot.Record{
		SlotID: h.SlotID,
		RunID:  kit.GetRunID(ctx),
		Tree:   tree,
		PNG:    buf.Bytes(),
	}
	if t := w.VersionText(); t != nil {
		rec.Version = t.Content
	}
	if info, ok := runInfoFrom(ctx); ok {
		rec.Released = info.Released
		rec.Desaturate = info.Desaturate
	}
	if err := h.Store.Put(ctx, rec); err != nil {
		return err
	}
	h.logger().Info("present: widget set", "slot_id", h.SlotID, "version", rec.Version, "run_id", rec.RunID)
	return nil
}

func (h *SlotHost) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type runInfoKey struct{}

// RunInfo is what the pipeline decided for the widget being presented.
type RunInfo struct {
	Released   bool
	Desaturate int
}

// WithRunInfo attaches info to ctx so hosts that persist the widget can
// store it alongside the tree.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

func runInfoFrom(ctx context.Context) (RunInfo, bool) {
	v, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return v, ok
}
