package annotate

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/relwidget/internal/browser"
)

// PageOpener hands out isolated pages. *browser.Manager implements it.
type PageOpener interface {
	NewPage(ctx context.Context) (*browser.Page, error)
}

// Browser annotates by rendering Document in a headless Chrome page and
// reading back the canvas. Every call gets a fresh incognito page.
type Browser struct {
	pages  PageOpener
	logger *slog.Logger
}

// NewBrowser creates a Browser transformer.
func NewBrowser(pages PageOpener, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{pages: pages, logger: logger}
}

func (b *Browser) Transform(ctx context.Context, img image.Image, p Params) (image.Image, error) {
	doc, err := Document(img, p)
	if err != nil {
		return nil, err
	}

	page, err := b.pages.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("annotate: open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			b.logger.Warn("annotate: close page", "error", err)
		}
	}()

	pg := page.Context(ctx)
	if err := pg.SetDocumentContent(doc); err != nil {
		return nil, fmt.Errorf("annotate: load document: %w", err)
	}

	// Resolves from the image load callback; the caller's deadline is the
	// only upper bound.
	res, err := pg.Evaluate(rod.Eval(`() => window.` + resultGlobal).ByPromise())
	if err != nil {
		return nil, fmt.Errorf("annotate: await canvas: %w", err)
	}

	out, err := DecodeDataURL(res.Value.Str())
	if err != nil {
		return nil, err
	}
	b.logger.Debug("annotate: rendered in browser",
		"width", out.Bounds().Dx(), "height", out.Bounds().Dy(), "desaturate", p.Desaturate)
	return out, nil
}
