// Package raster holds the pixel operations shared by the native annotator
// and the widget preview renderer: colour-matrix desaturation, text masks
// with blurred shadows, gradients and rounded-corner masks.
package raster

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// ToNRGBA copies img into a new *image.NRGBA whose origin is (0,0).
// The source is never modified.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Grayscale applies the CSS grayscale(amount) colour matrix in place.
// amount is clamped to [0,1]: 0 leaves the image untouched, 1 maps every
// pixel to its Rec. 709 luminance.
func Grayscale(img *image.NRGBA, amount float64) {
	a := clamp01(amount)
	if a == 0 {
		return
	}
	inv := 1 - a
	m := [3][3]float64{
		{0.2126 + 0.7874*inv, 0.7152 - 0.7152*inv, 0.0722 - 0.0722*inv},
		{0.2126 - 0.2126*inv, 0.7152 + 0.2848*inv, 0.0722 - 0.0722*inv},
		{0.2126 - 0.2126*inv, 0.7152 - 0.7152*inv, 0.0722 + 0.9278*inv},
	}

	pix := img.Pix
	for y := 0; y < img.Rect.Dy(); y++ {
		row := pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			r, g, b := float64(row[i]), float64(row[i+1]), float64(row[i+2])
			row[i] = clampByte(m[0][0]*r + m[0][1]*g + m[0][2]*b)
			row[i+1] = clampByte(m[1][0]*r + m[1][1]*g + m[1][2]*b)
			row[i+2] = clampByte(m[2][0]*r + m[2][1]*g + m[2][2]*b)
		}
	}
}

// Stop is a gradient colour stop; Pos is in [0,1].
type Stop struct {
	Pos   float64
	Color color.NRGBA
}

// VerticalGradient fills dst top to bottom through stops, which must be
// sorted by Pos.
func VerticalGradient(dst *image.RGBA, stops []Stop) {
	if len(stops) == 0 {
		return
	}
	b := dst.Bounds()
	h := b.Dy()
	for y := 0; y < h; y++ {
		t := 0.0
		if h > 1 {
			t = float64(y) / float64(h-1)
		}
		c := colorAt(stops, t)
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, b.Min.Y+y, c)
		}
	}
}

func colorAt(stops []Stop, t float64) color.NRGBA {
	if t <= stops[0].Pos {
		return stops[0].Color
	}
	for i := 1; i < len(stops); i++ {
		lo, hi := stops[i-1], stops[i]
		if t <= hi.Pos {
			span := hi.Pos - lo.Pos
			if span <= 0 {
				return hi.Color
			}
			f := (t - lo.Pos) / span
			return color.NRGBA{
				R: lerp(lo.Color.R, hi.Color.R, f),
				G: lerp(lo.Color.G, hi.Color.G, f),
				B: lerp(lo.Color.B, hi.Color.B, f),
				A: lerp(lo.Color.A, hi.Color.A, f),
			}
		}
	}
	return stops[len(stops)-1].Color
}

// RoundedMask returns a w×h alpha mask with corners of radius r cut out.
// Edge pixels are anti-aliased over a one-pixel band.
func RoundedMask(w, h int, r float64) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	maxR := math.Min(float64(w), float64(h)) / 2
	if r > maxR {
		r = maxR
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask.Pix[y*mask.Stride+x] = cornerCoverage(float64(x)+0.5, float64(y)+0.5, float64(w), float64(h), r)
		}
	}
	return mask
}

func cornerCoverage(px, py, w, h, r float64) uint8 {
	if r <= 0 {
		return 0xff
	}
	cx, cy := px, py
	switch {
	case px < r:
		cx = r
	case px > w-r:
		cx = w - r
	}
	switch {
	case py < r:
		cy = r
	case py > h-r:
		cy = h - r
	}
	d := math.Hypot(px-cx, py-cy)
	switch {
	case d <= r-0.5:
		return 0xff
	case d >= r+0.5:
		return 0
	default:
		return uint8((r + 0.5 - d) * 0xff)
	}
}

// Scale resizes src to w×h with Catmull-Rom resampling.
func Scale(src image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func lerp(a, b uint8, f float64) uint8 {
	return clampByte(float64(a) + (float64(b)-float64(a))*f)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
