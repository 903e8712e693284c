// Package pipeline runs one widget refresh: look up the app, fetch and
// annotate its icon, compose the widget and present it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/relwidget/annotate"
	"github.com/hazyhaar/relwidget/appstore"
	"github.com/hazyhaar/relwidget/idgen"
	"github.com/hazyhaar/relwidget/kit"
	"github.com/hazyhaar/relwidget/observability"
	"github.com/hazyhaar/relwidget/present"
	"github.com/hazyhaar/relwidget/slot"
	"github.com/hazyhaar/relwidget/widget"
)

// Metadata looks up app metadata.
type Metadata interface {
	Lookup(ctx context.Context, appID string) (appstore.AppInfo, error)
}

// Images fetches and decodes an image. An empty URL means the fallback.
type Images interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// Annotator desaturates an icon by percent and stamps it.
type Annotator interface {
	Annotate(ctx context.Context, img image.Image, percent float64) (image.Image, error)
}

// RunRecorder receives one entry per run, successful or not.
type RunRecorder interface {
	LogAsync(e *observability.RunEntry)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Metadata  Metadata
	Images    Images
	Annotator Annotator
	Host      present.Host
	Logger    *slog.Logger
	// NewRunID generates run ids. Default: idgen.Run.
	NewRunID idgen.Generator
	// Runs, when set, records every run.
	Runs RunRecorder
}

// Options tune what a run decides.
type Options struct {
	AppID         int64
	TargetVersion string
	// Desaturation percentages for a released and a pending version. Nil
	// takes the DefaultOptions value; Percent(0) keeps full colour.
	ReleasedDesaturation *int
	PendingDesaturation  *int
	// ArtworkURL is used when the lookup carries no artwork.
	ArtworkURL string
	Theme      widget.Theme
}

// DefaultOptions tracks the app and release baked into the widget.
func DefaultOptions() Options {
	return Options{
		AppID:                625334537,
		TargetVersion:        widget.TargetVersion,
		ReleasedDesaturation: Percent(0),
		PendingDesaturation:  Percent(90),
		Theme:                widget.DefaultTheme(),
	}
}

// Percent returns a pointer to n for the desaturation options.
func Percent(n int) *int { return &n }

// Result describes a completed run.
type Result struct {
	RunID      string
	Version    string
	Released   bool
	Desaturate int
	Widget     *widget.Widget
	Presented  string // "widget" or "preview"
	Duration   time.Duration
}

// Pipeline runs refreshes one at a time.
type Pipeline struct {
	deps Deps
	opts Options

	mu sync.Mutex
}

// New validates deps and fills empty options from DefaultOptions.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Metadata == nil:
		return nil, fmt.Errorf("pipeline: Metadata is required")
	case deps.Images == nil:
		return nil, fmt.Errorf("pipeline: Images is required")
	case deps.Annotator == nil:
		return nil, fmt.Errorf("pipeline: Annotator is required")
	case deps.Host == nil:
		return nil, fmt.Errorf("pipeline: Host is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewRunID == nil {
		deps.NewRunID = idgen.Run
	}

	def := DefaultOptions()
	if opts.AppID == 0 {
		opts.AppID = def.AppID
	}
	if opts.TargetVersion == "" {
		opts.TargetVersion = def.TargetVersion
	}
	if opts.ReleasedDesaturation == nil {
		opts.ReleasedDesaturation = def.ReleasedDesaturation
	}
	if opts.PendingDesaturation == nil {
		opts.PendingDesaturation = def.PendingDesaturation
	}
	if opts.Theme.AppURL == "" && len(opts.Theme.ReleasedGradient.Colors) == 0 {
		opts.Theme = def.Theme
	}
	return &Pipeline{deps: deps, opts: opts}, nil
}

// Run performs one refresh. Concurrent calls are serialized.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	runID := p.deps.NewRunID()
	ctx = kit.WithRunID(ctx, runID)

	res, err := p.run(ctx, runID)
	if res != nil {
		res.Duration = time.Since(start)
	}
	p.record(ctx, runID, start, res, err)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, runID string) (*Result, error) {
	log := p.deps.Logger.With("run_id", runID)

	info, err := p.deps.Metadata.Lookup(ctx, strconv.FormatInt(p.opts.AppID, 10))
	if err != nil {
		return nil, fmt.Errorf("pipeline: lookup: %w", err)
	}

	version := info.Version
	if version == "" {
		version = widget.UnknownVersion
	}
	released := widget.Released(info.Version, p.opts.TargetVersion)
	log.Debug("pipeline: looked up", "version", version, "released", released)

	artURL := info.ArtworkURL512
	if artURL == "" {
		artURL = p.opts.ArtworkURL
	}
	icon, err := p.deps.Images.Fetch(ctx, artURL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: artwork: %w", err)
	}

	percent := *p.opts.PendingDesaturation
	if released {
		percent = *p.opts.ReleasedDesaturation
	}
	annotated, err := p.deps.Annotator.Annotate(ctx, icon, float64(percent))
	if err != nil {
		return nil, fmt.Errorf("pipeline: annotate: %w", err)
	}

	tree := p.opts.Theme.Compose(version, annotated, released)

	ctx = present.WithRunInfo(ctx, present.RunInfo{Released: released, Desaturate: percent})
	if err := present.Present(ctx, tree, p.deps.Host); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	res := &Result{
		RunID:      runID,
		Version:    version,
		Released:   released,
		Desaturate: percent,
		Widget:     tree,
		Presented:  present.Mode(p.deps.Host),
	}
	log.Info("pipeline: run complete",
		"version", res.Version,
		"released", res.Released,
		"desaturate", res.Desaturate,
		"presented", res.Presented,
	)
	return res, nil
}

func (p *Pipeline) record(ctx context.Context, runID string, start time.Time, res *Result, err error) {
	if p.deps.Runs == nil {
		return
	}
	e := &observability.RunEntry{
		RunID:      runID,
		Timestamp:  start,
		AppID:      strconv.FormatInt(p.opts.AppID, 10),
		Transport:  kit.GetTransport(ctx),
		DurationMs: time.Since(start).Milliseconds(),
	}
	switch {
	case err == nil:
		e.Status = observability.StatusSuccess
		e.Version = res.Version
		e.Released = res.Released
		e.Desaturate = res.Desaturate
		e.Presented = res.Presented
	case errors.Is(err, annotate.ErrTimeout):
		e.Status = observability.StatusTimeout
		e.ErrorMessage = err.Error()
	default:
		e.Status = observability.StatusError
		e.ErrorMessage = err.Error()
	}
	p.deps.Runs.LogAsync(e)
}

// SlotRefresh adapts Run for the slot server's refresh route and tool.
func (p *Pipeline) SlotRefresh(slotID string) slot.RefreshFunc {
	return func(ctx context.Context) (*slot.RefreshResult, error) {
		res, err := p.Run(ctx)
		if err != nil {
			return nil, err
		}
		return &slot.RefreshResult{
			RunID:      res.RunID,
			SlotID:     slotID,
			Version:    res.Version,
			Released:   res.Released,
			Desaturate: res.Desaturate,
			Presented:  res.Presented,
		}, nil
	}
}
