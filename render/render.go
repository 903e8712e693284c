// Package render rasterizes a widget tree to an image, the way the host
// shows a small widget: gradient background, padded content, stacks laid
// out top to bottom and centred.
package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"

	"github.com/hazyhaar/relwidget/internal/raster"
	"github.com/hazyhaar/relwidget/widget"
)

// SmallSize is the edge of a small home-screen widget, in points.
const SmallSize = 169

// Renderer draws widget trees.
type Renderer struct {
	// Size is the widget edge in points. Default: SmallSize.
	Size int
	// Scale is pixels per point. Default: 2.
	Scale float64
}

func (r Renderer) withDefaults() Renderer {
	if r.Size <= 0 {
		r.Size = SmallSize
	}
	if r.Scale <= 0 {
		r.Scale = 2
	}
	return r
}

// Render draws w and returns the raster.
func (r Renderer) Render(w *widget.Widget) (*image.RGBA, error) {
	if w == nil {
		return nil, fmt.Errorf("render: nil widget")
	}
	r = r.withDefaults()
	px := r.px(float64(r.Size))
	dst := image.NewRGBA(image.Rect(0, 0, px, px))

	stops := make([]raster.Stop, 0, len(w.Background.Colors))
	for i, c := range w.Background.Colors {
		pos := float64(i) / math.Max(1, float64(len(w.Background.Colors)-1))
		if i < len(w.Background.Locations) {
			pos = w.Background.Locations[i]
		}
		stops = append(stops, raster.Stop{Pos: pos, Color: c.NRGBA()})
	}
	raster.VerticalGradient(dst, stops)

	content := image.Rect(
		r.px(float64(w.Padding.Leading)),
		r.px(float64(w.Padding.Top)),
		px-r.px(float64(w.Padding.Trailing)),
		px-r.px(float64(w.Padding.Bottom)),
	)

	boxes, err := r.layout(w, content)
	if err != nil {
		return nil, err
	}
	for _, b := range boxes {
		if err := r.drawBox(dst, b); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// RenderPNG draws w and encodes it as PNG.
func (r Renderer) RenderPNG(w *widget.Widget, out io.Writer) error {
	img, err := r.Render(w)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}

// box is a placed stack: the rectangle of its content, in pixels.
type box struct {
	stack   widget.Stack
	content image.Rectangle
	textPx  float64
}

func (r Renderer) layout(w *widget.Widget, content image.Rectangle) ([]box, error) {
	var boxes []box
	y := 0
	remaining := content.Dy()

	for _, s := range w.Stacks {
		padT, padB := r.px(float64(s.Padding.Top)), r.px(float64(s.Padding.Bottom))
		padL, padR := r.px(float64(s.Padding.Leading)), r.px(float64(s.Padding.Trailing))

		width := content.Dx()
		if s.Size.Width > 0 {
			width = min(r.px(float64(s.Size.Width)), content.Dx())
		}
		inner := max(width-padL-padR, 1)

		var b box
		b.stack = s
		switch {
		case s.Text != nil:
			size, h, err := r.fitText(s.Text, inner)
			if err != nil {
				return nil, err
			}
			b.textPx = size
			b.content = image.Rect(0, 0, inner, h)
		case s.Image != nil:
			// The icon takes the height left after the stacks above it.
			side := min(remaining-padT-padB, inner)
			if s.Size.Width == 0 {
				side = min(remaining-padT-padB, content.Dx()-padL-padR)
			}
			side = max(side, 1)
			b.content = image.Rect(0, 0, side, side)
			width = side + padL + padR
		default:
			continue
		}

		h := b.content.Dy() + padT + padB
		x := content.Min.X + (content.Dx()-width)/2
		b.content = b.content.Add(image.Pt(x+padL, y+padT))
		boxes = append(boxes, b)

		y += h
		remaining -= h
	}

	// Centre the column vertically.
	off := content.Min.Y + max((content.Dy()-y)/2, 0)
	for i := range boxes {
		boxes[i].content = boxes[i].content.Add(image.Pt(0, off))
	}
	return boxes, nil
}

// fitText shrinks the font until the text fits width, down to the
// minimum scale factor. Returns the font size and line height in pixels.
func (r Renderer) fitText(t *widget.Text, width int) (float64, int, error) {
	full := r.scale(t.Font.Size)
	minScale := t.MinimumScaleFactor
	if minScale <= 0 || minScale > 1 {
		minScale = 1
	}
	size := full
	for {
		face, err := raster.Face(raster.MonoBold, size)
		if err != nil {
			return 0, 0, fmt.Errorf("render: font: %w", err)
		}
		fits := raster.Measure(face, t.Content) <= width
		m := face.Metrics()
		h := m.Ascent.Ceil() + m.Descent.Ceil()
		face.Close()
		if fits || size <= full*minScale {
			return size, h, nil
		}
		size = math.Max(size*0.95, full*minScale)
	}
}

func (r Renderer) drawBox(dst *image.RGBA, b box) error {
	switch {
	case b.stack.Text != nil:
		t := b.stack.Text
		face, err := raster.Face(raster.MonoBold, b.textPx)
		if err != nil {
			return fmt.Errorf("render: font: %w", err)
		}
		defer face.Close()

		var shadow *raster.Shadow
		if t.Shadow != nil {
			shadow = &raster.Shadow{
				Color:  t.Shadow.Color.NRGBA(),
				Blur:   r.scale(t.Shadow.Radius) * 2,
				Offset: image.Pt(r.px(t.Shadow.Offset.X), r.px(t.Shadow.Offset.Y)),
			}
		}
		baseline := b.content.Min.Y + face.Metrics().Ascent.Ceil()
		raster.DrawText(dst, face, t.Content, b.content.Min.X, baseline, t.Color.NRGBA(), shadow)

	case b.stack.Image != nil && b.stack.Image.Source != nil:
		im := b.stack.Image
		side := b.content.Dx()
		scaled := raster.Scale(im.Source, side, b.content.Dy())
		mask := raster.RoundedMask(side, b.content.Dy(), r.scale(im.CornerRadius))
		draw.DrawMask(dst, b.content, scaled, image.Point{}, mask, image.Point{}, draw.Over)
	}
	return nil
}

func (r Renderer) scale(pt float64) float64 { return pt * r.Scale }

func (r Renderer) px(pt float64) int { return int(math.Round(pt * r.Scale)) }
