// CLAUDE:SUMMARY Icon annotation core: desaturate by percent and stamp the render time, bounded by an explicit timeout.
// Package annotate turns the fetched app icon into the widget icon: the
// image is desaturated by a percentage and stamped with the wall-clock time
// of the render.
//
// The work is done by a Transformer. Browser renders through a headless
// Chrome canvas; Native does the same in pure Go. Either way callers go
// through Annotator, which bounds the call with a timeout so an
// unresponsive rendering context becomes ErrTimeout instead of a hang.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"
)

// ErrTimeout is returned when the transformer does not complete in time.
var ErrTimeout = errors.New("annotate: rendering context did not complete")

// ErrDimensions is returned when a transformer changes the image size.
var ErrDimensions = errors.New("annotate: output dimensions differ from input")

// DefaultTimeout bounds a single annotation.
const DefaultTimeout = 15 * time.Second

// Params drives one transform.
type Params struct {
	// Desaturate is a percentage: 0 keeps colours, 100 is full grayscale.
	Desaturate float64
	// Stamp is drawn bottom-center. Empty = no stamp.
	Stamp string
}

func (p Params) normalized() Params {
	switch {
	case p.Desaturate < 0 || math.IsNaN(p.Desaturate):
		p.Desaturate = 0
	case p.Desaturate > 100:
		p.Desaturate = 100
	}
	return p
}

// StampAt formats t as the "(HH:MM:SS)" stamp, 24-hour, independent of locale.
func StampAt(t time.Time) string {
	return "(" + t.Format("15:04:05") + ")"
}

// Transformer produces a new image from img. It must not mutate img and
// must preserve its pixel dimensions.
type Transformer interface {
	Transform(ctx context.Context, img image.Image, p Params) (image.Image, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, img image.Image, p Params) (image.Image, error)

func (f TransformerFunc) Transform(ctx context.Context, img image.Image, p Params) (image.Image, error) {
	return f(ctx, img, p)
}

// Annotator applies a Transformer with a bounded timeout and a stamp taken
// from Now at render time.
type Annotator struct {
	Transformer Transformer
	Timeout     time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

// New creates an Annotator with DefaultTimeout and the wall clock.
func New(t Transformer, logger *slog.Logger) *Annotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{Transformer: t, Timeout: DefaultTimeout, Now: time.Now, Logger: logger}
}

// Annotate desaturates img by percent and stamps the current time.
func (a *Annotator) Annotate(ctx context.Context, img image.Image, percent float64) (image.Image, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	p := Params{Desaturate: percent, Stamp: StampAt(now())}
	return Bounded(ctx, a.Transformer, img, p, a.Timeout)
}

// Bounded runs t.Transform and gives up after timeout. The transformer runs
// on its own goroutine so a context-unaware implementation cannot block the
// caller past the bound.
func Bounded(ctx context.Context, t Transformer, img image.Image, p Params, timeout time.Duration) (image.Image, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if img == nil {
		return nil, fmt.Errorf("annotate: nil image")
	}
	p = p.normalized()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		img image.Image
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := t.Transform(tctx, img, p)
		done <- result{out, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("annotate: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	if r.err != nil {
		if ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, r.err)
		}
		return nil, r.err
	}
	if r.img == nil {
		return nil, fmt.Errorf("annotate: transformer returned no image")
	}

	in, out := img.Bounds(), r.img.Bounds()
	if in.Dx() != out.Dx() || in.Dy() != out.Dy() {
		return nil, fmt.Errorf("%w: %dx%d -> %dx%d", ErrDimensions, in.Dx(), in.Dy(), out.Dx(), out.Dy())
	}
	return r.img, nil
}
