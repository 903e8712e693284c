package annotate

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/hazyhaar/relwidget/internal/raster"
)

// stampShadowBlur mirrors the canvas shadowBlur used by the browser document.
const stampShadowBlur = 20

// Native annotates in pure Go. It follows the browser document step for
// step: grayscale filter, draw at origin, stamp centered at h-h/9 in bold
// h/6 px white text over a blurred black shadow.
type Native struct{}

func (Native) Transform(ctx context.Context, img image.Image, p Params) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := raster.ToNRGBA(img)
	raster.Grayscale(dst, p.Desaturate/100)

	if p.Stamp != "" {
		if err := stamp(dst, p.Stamp); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func stamp(dst *image.NRGBA, text string) error {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	face, err := raster.Face(raster.Bold, float64(h)/6)
	if err != nil {
		return fmt.Errorf("annotate: stamp font: %w", err)
	}
	defer face.Close()

	tw := raster.Measure(face, text)
	raster.DrawText(dst, face, text, (w-tw)/2, h-h/9, color.White, &raster.Shadow{
		Color: color.Black,
		Blur:  stampShadowBlur,
	})
	return nil
}
