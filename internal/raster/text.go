package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Typeface selects one of the embedded Go fonts.
type Typeface int

const (
	Bold     Typeface = iota // sans-serif bold, used for the time stamp
	MonoBold                 // monospaced bold, used for the version text
)

var (
	fontsOnce sync.Once
	fonts     map[Typeface]*opentype.Font
	fontsErr  error
)

func loadFonts() {
	fonts = make(map[Typeface]*opentype.Font, 2)
	for tf, ttf := range map[Typeface][]byte{Bold: gobold.TTF, MonoBold: gomonobold.TTF} {
		f, err := opentype.Parse(ttf)
		if err != nil {
			fontsErr = fmt.Errorf("raster: parse font %d: %w", tf, err)
			return
		}
		fonts[tf] = f
	}
}

// Face returns a face of the typeface at px pixels (72 DPI, so points == pixels).
func Face(tf Typeface, px float64) (font.Face, error) {
	fontsOnce.Do(loadFonts)
	if fontsErr != nil {
		return nil, fontsErr
	}
	f, ok := fonts[tf]
	if !ok {
		return nil, fmt.Errorf("raster: unknown typeface %d", tf)
	}
	if px < 1 {
		px = 1
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    px,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Measure returns the advance width of s in face, in pixels.
func Measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// Shadow describes a canvas-style text shadow.
type Shadow struct {
	Color  color.Color
	Blur   float64 // canvas shadowBlur: a gaussian with sigma Blur/2
	Offset image.Point
}

// TextMask renders s into an alpha mask whose baseline sits at ascent.
func TextMask(face font.Face, s string) (mask *image.Alpha, ascent int) {
	m := face.Metrics()
	ascent = m.Ascent.Ceil()
	h := ascent + m.Descent.Ceil()
	w := Measure(face, s)
	mask = image.NewAlpha(image.Rect(0, 0, max(w, 1), max(h, 1)))
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(s)
	return mask, ascent
}

// DrawText draws s with its left edge at x and baseline at y, filled with
// fill, optionally over a blurred shadow.
func DrawText(dst draw.Image, face font.Face, s string, x, y int, fill color.Color, shadow *Shadow) {
	mask, ascent := TextMask(face, s)
	origin := image.Pt(x, y-ascent)

	if shadow != nil && shadow.Color != nil {
		blurred, r := ShadowMask(mask, shadow.Blur)
		at := origin.Add(shadow.Offset).Sub(image.Pt(r, r))
		draw.DrawMask(dst, blurred.Bounds().Add(at), image.NewUniform(shadow.Color), image.Point{}, blurred, image.Point{}, draw.Over)
	}

	draw.DrawMask(dst, mask.Bounds().Add(origin), image.NewUniform(fill), image.Point{}, mask, image.Point{}, draw.Over)
}

// ShadowMask blurs mask the way canvas shadowBlur does. The result is a new
// zero-origin image grown by r on every side so the falloff is not clipped;
// mask itself is never returned or modified.
func ShadowMask(mask image.Image, blur float64) (out *image.NRGBA, r int) {
	sigma := blur / 2
	if sigma > 0 {
		r = int(math.Ceil(3 * sigma))
	}
	return imaging.Blur(pad(mask, r), sigma), r
}

// pad copies m into a zero-origin alpha image with r transparent pixels on
// each side. Any m.Bounds().Min is accepted.
func pad(m image.Image, r int) *image.Alpha {
	b := m.Bounds()
	out := image.NewAlpha(image.Rect(0, 0, b.Dx()+2*r, b.Dy()+2*r))
	draw.Draw(out, image.Rect(r, r, r+b.Dx(), r+b.Dy()), m, b.Min, draw.Src)
	return out
}
