// CLAUDE:SUMMARY Declarative widget tree types and the pure Compose function choosing the released or pending theme.
// Package widget describes the release widget as a declarative tree and
// composes it from a version string and the annotated icon.
//
// Compose does no I/O; the same inputs always produce the same tree.
package widget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
)

// TargetVersion is the release the widget is waiting for.
const TargetVersion = "2.2"

// UnknownVersion is displayed when the lookup returned nothing.
const UnknownVersion = "?.?"

// AppURL is the tap-through target attached once the target is released.
const AppURL = "itms-apps://itunes.apple.com/app/id625334537"

// Released reports whether version is the target release.
func Released(version, target string) bool {
	v := strings.TrimSpace(version)
	return v != "" && v == strings.TrimSpace(target)
}

// Color is a hex RGB colour ("F1EB5A"), optionally with alpha ("F1EB5A80").
type Color string

// NRGBA parses the colour. Invalid strings yield opaque black.
func (c Color) NRGBA() color.NRGBA {
	s := strings.TrimPrefix(string(c), "#")
	if len(s) != 6 && len(s) != 8 {
		return color.NRGBA{A: 0xff}
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{A: 0xff}
	}
	if len(s) == 6 {
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}

// White is the text colour in both themes.
const White Color = "FFFFFF"

// Gradient is a vertical linear gradient.
type Gradient struct {
	Locations []float64 `json:"locations"`
	Colors    []Color   `json:"colors"`
}

// Padding is top, leading, bottom, trailing, in points.
type Padding struct {
	Top      int `json:"top"`
	Leading  int `json:"leading"`
	Bottom   int `json:"bottom"`
	Trailing int `json:"trailing"`
}

// Uniform returns a padding of n on every side.
func Uniform(n int) Padding { return Padding{n, n, n, n} }

// Size is a fixed stack size; 0 means "fit content" on that axis.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is a shadow offset.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shadow is a text glow.
type Shadow struct {
	Color  Color   `json:"color"`
	Radius float64 `json:"radius"`
	Offset Point   `json:"offset"`
}

// Font describes the text face.
type Font struct {
	Name       string  `json:"name"`
	Size       float64 `json:"size"`
	Monospaced bool    `json:"monospaced"`
}

// BlackMonospaced is the heaviest monospaced system font at size.
func BlackMonospaced(size float64) Font {
	return Font{Name: "black-monospaced", Size: size, Monospaced: true}
}

// Text is a text element.
type Text struct {
	Content string `json:"content"`
	Font    Font   `json:"font"`
	Color   Color  `json:"color"`
	// MinimumScaleFactor lets the text shrink down to this fraction of
	// Font.Size to fit its stack.
	MinimumScaleFactor float64 `json:"minimum_scale_factor"`
	Shadow             *Shadow `json:"shadow,omitempty"`
	URL                string  `json:"url,omitempty"`
}

// Image is an image element. It serialises as PNG.
type Image struct {
	Source       image.Image `json:"-"`
	CornerRadius float64     `json:"corner_radius"`
	URL          string      `json:"url,omitempty"`
}

type imageJSON struct {
	PNG          []byte  `json:"png"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	CornerRadius float64 `json:"corner_radius"`
	URL          string  `json:"url,omitempty"`
}

// MarshalJSON encodes the image as base64 PNG with its size.
func (i Image) MarshalJSON() ([]byte, error) {
	out := imageJSON{CornerRadius: i.CornerRadius, URL: i.URL}
	if i.Source != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, i.Source); err != nil {
			return nil, fmt.Errorf("widget: encode image: %w", err)
		}
		out.PNG = buf.Bytes()
		out.Width = i.Source.Bounds().Dx()
		out.Height = i.Source.Bounds().Dy()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the PNG payload.
func (i *Image) UnmarshalJSON(data []byte) error {
	var in imageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	i.CornerRadius = in.CornerRadius
	i.URL = in.URL
	i.Source = nil
	if len(in.PNG) > 0 {
		img, err := png.Decode(bytes.NewReader(in.PNG))
		if err != nil {
			return fmt.Errorf("widget: decode image: %w", err)
		}
		i.Source = img
	}
	return nil
}

// Stack is a horizontal container holding one element.
type Stack struct {
	Padding Padding `json:"padding"`
	Size    Size    `json:"size"`
	Text    *Text   `json:"text,omitempty"`
	Image   *Image  `json:"image,omitempty"`
}

// Widget is the root of the tree. Stacks are laid out top to bottom.
type Widget struct {
	Background Gradient `json:"background"`
	Padding    Padding  `json:"padding"`
	Stacks     []Stack  `json:"stacks"`
}

// Links returns every tap-through URL in the tree, in layout order.
func (w *Widget) Links() []string {
	var out []string
	for _, s := range w.Stacks {
		if s.Text != nil && s.Text.URL != "" {
			out = append(out, s.Text.URL)
		}
		if s.Image != nil && s.Image.URL != "" {
			out = append(out, s.Image.URL)
		}
	}
	return out
}

// VersionText returns the version text element, if any.
func (w *Widget) VersionText() *Text {
	for _, s := range w.Stacks {
		if s.Text != nil {
			return s.Text
		}
	}
	return nil
}

// Icon returns the icon element, if any.
func (w *Widget) Icon() *Image {
	for _, s := range w.Stacks {
		if s.Image != nil {
			return s.Image
		}
	}
	return nil
}
