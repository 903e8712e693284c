package widget

import "image"

// Theme holds the two colour schemes and the shared layout metrics.
type Theme struct {
	ReleasedGradient Gradient
	PendingGradient  Gradient
	Glow             Shadow
	AppURL           string

	WidgetPadding      int
	VersionWidth       int
	FontSize           float64
	MinimumScaleFactor float64
	IconCornerRadius   float64
}

// DefaultTheme returns the warm/cool theme of the release widget.
func DefaultTheme() Theme {
	return Theme{
		ReleasedGradient: Gradient{
			Locations: []float64{0, 0.6, 1},
			Colors:    []Color{"F1EB5A", "E7AE54", "ED8834"},
		},
		PendingGradient: Gradient{
			Locations: []float64{0, 1},
			Colors:    []Color{"141414", "13233F"},
		},
		Glow: Shadow{
			Color:  "FFFFAA",
			Radius: 3,
			Offset: Point{X: 0, Y: 6},
		},
		AppURL:             AppURL,
		WidgetPadding:      10,
		VersionWidth:       140,
		FontSize:           45,
		MinimumScaleFactor: 0.5,
		IconCornerRadius:   16,
	}
}

// Compose builds the widget with DefaultTheme.
func Compose(version string, icon image.Image, released bool) *Widget {
	return DefaultTheme().Compose(version, icon, released)
}

// Compose builds the widget tree. Released selects the warm gradient, a
// tighter version padding, the glow and the tap-through links; otherwise
// the cool gradient with no glow and no links.
func (t Theme) Compose(version string, icon image.Image, released bool) *Widget {
	bg := t.PendingGradient
	leading := 7
	if released {
		bg = t.ReleasedGradient
		leading = 2
	}

	text := &Text{
		Content:            version,
		Font:               BlackMonospaced(t.FontSize),
		Color:              White,
		MinimumScaleFactor: t.MinimumScaleFactor,
	}
	img := &Image{
		Source:       icon,
		CornerRadius: t.IconCornerRadius,
	}

	if released {
		glow := t.Glow
		text.Shadow = &glow
		text.URL = t.AppURL
		img.URL = t.AppURL
	}

	return &Widget{
		Background: Gradient{
			Locations: append([]float64(nil), bg.Locations...),
			Colors:    append([]Color(nil), bg.Colors...),
		},
		Padding: Uniform(t.WidgetPadding),
		Stacks: []Stack{
			{
				Padding: Padding{Top: 2, Leading: leading, Bottom: 2, Trailing: 2},
				Size:    Size{Width: t.VersionWidth},
				Text:    text,
			},
			{
				Padding: Padding{Top: 2, Leading: 25, Bottom: 2, Trailing: 2},
				Image:   img,
			},
		},
	}
}

// ComposeWith builds the tree with theme t.
func ComposeWith(t Theme, version string, icon image.Image, released bool) *Widget {
	return t.Compose(version, icon, released)
}
