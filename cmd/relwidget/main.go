// Command relwidget refreshes the release-watch widget: it looks up the
// tracked app, greys out its icon until the target version ships, stamps
// the refresh time and presents the widget.
//
// Usage:
//
//	relwidget run   -config relwidget.yaml   # one refresh, preview or slot
//	relwidget serve -config relwidget.yaml   # periodic refresh + slot HTTP API
//	relwidget mcp   -config relwidget.yaml   # MCP server on stdio
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/relwidget/annotate"
	"github.com/hazyhaar/relwidget/appstore"
	"github.com/hazyhaar/relwidget/artwork"
	"github.com/hazyhaar/relwidget/config"
	"github.com/hazyhaar/relwidget/dbopen"
	"github.com/hazyhaar/relwidget/internal/browser"
	"github.com/hazyhaar/relwidget/observability"
	"github.com/hazyhaar/relwidget/pipeline"
	"github.com/hazyhaar/relwidget/present"
	"github.com/hazyhaar/relwidget/slot"
	"github.com/hazyhaar/relwidget/trace"
	"github.com/hazyhaar/relwidget/widget"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	mode := os.Args[1]

	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	configPath := fs.String("config", "", "path to relwidget.yaml")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	dbPath := fs.String("db", "", "slot database path")
	addr := fs.String("addr", "", "HTTP listen address (serve)")
	renderer := fs.String("renderer", "", "annotation renderer: native, browser")
	inWidget := fs.Bool("in-widget", false, "present as the widget instead of a preview")
	preview := fs.String("preview", "", "preview PNG output path")
	fs.Parse(os.Args[2:])

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.LogLevel = *logLevel
		case "db":
			cfg.Server.DBPath = *dbPath
		case "addr":
			cfg.Server.Addr = *addr
		case "renderer":
			cfg.Annotate.Renderer = *renderer
		case "in-widget":
			cfg.Host.RunsInWidget = *inWidget
		case "preview":
			cfg.Host.PreviewPath = *preview
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, mode); err != nil {
		logger.Error("relwidget: fatal", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: relwidget run|serve|mcp [-config file] [flags]")
	os.Exit(2)
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, mode string) error {
	switch mode {
	case "run", "serve", "mcp":
	default:
		usage()
	}

	ann, closeAnn, err := newAnnotator(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeAnn()

	previewHost := &present.Preview{
		Path:     cfg.Host.PreviewPath,
		Scale:    cfg.Host.PreviewScale,
		InWidget: cfg.Host.RunsInWidget,
		Logger:   logger,
	}

	// A one-shot preview needs no database.
	var (
		host  present.Host = previewHost
		store *slot.Store
		runs  *observability.RunLog
		db    *sql.DB
	)
	if mode != "run" || cfg.Host.RunsInWidget {
		opts := []dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema)}
		if cfg.Server.TraceSQL {
			trace.SetLogger(logger)
			opts = append(opts, dbopen.WithDriver(trace.DriverName))
		}
		if db, err = dbopen.Open(cfg.Server.DBPath, opts...); err != nil {
			return err
		}
		defer db.Close()
		if store, err = slot.NewStore(db); err != nil {
			return err
		}
		runs = observability.NewRunLog(db, 100, observability.WithLogger(logger))
		defer runs.Close()
		host = &present.SlotHost{
			Store:    store,
			SlotID:   cfg.Host.SlotID,
			InWidget: cfg.Host.RunsInWidget || mode != "run",
			Preview:  previewHost,
			Logger:   logger,
		}
	}

	deps := pipeline.Deps{
		Metadata: appstore.New(
			appstore.WithBaseURL(cfg.App.LookupBaseURL),
			appstore.WithCountry(cfg.App.Country),
			appstore.WithHTTPClient(&http.Client{Timeout: cfg.App.FetchTimeout}),
			appstore.WithLogger(logger),
		),
		Images:    artwork.New(artwork.Config{Timeout: cfg.App.FetchTimeout, Logger: logger}),
		Annotator: ann,
		Host:      host,
		Logger:    logger,
	}
	if runs != nil {
		deps.Runs = runs
	}
	p, err := pipeline.New(deps, pipeline.Options{
		AppID:                cfg.App.ID,
		TargetVersion:        cfg.App.TargetVersion,
		ReleasedDesaturation: pipeline.Percent(cfg.Annotate.ReleasedDesaturation),
		PendingDesaturation:  pipeline.Percent(cfg.Annotate.PendingDesaturation),
		ArtworkURL:           cfg.App.ArtworkURL,
		Theme:                theme(cfg),
	})
	if err != nil {
		return err
	}

	switch mode {
	case "run":
		res, err := p.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s %s released=%t desaturate=%d presented=%s\n",
			res.RunID, res.Version, res.Released, res.Desaturate, res.Presented)
		return nil

	case "serve":
		return serve(ctx, logger, cfg, p, slot.NewServer(store, p.SlotRefresh(cfg.Host.SlotID), logger).WithRuns(runs), db)

	default:
		srv := mcp.NewServer(&mcp.Implementation{Name: "relwidget", Version: version}, nil)
		slot.NewServer(store, p.SlotRefresh(cfg.Host.SlotID), logger).WithRuns(runs).RegisterMCP(srv)
		logger.Info("relwidget: MCP on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}
}

// serve runs the slot API, the heartbeat and the refresher until ctx is
// done. It returns only after both workers have stopped, so the caller may
// close the database.
func serve(ctx context.Context, logger *slog.Logger, cfg *config.Config, p *pipeline.Pipeline, api *slot.Server, db *sql.DB) error {
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	workCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stop()

	hb := observability.NewHeartbeatWriter(db, "refresher", 30*time.Second, logger)
	wg.Add(2)
	go func() {
		defer wg.Done()
		hb.Run(workCtx)
	}()

	refresher := &pipeline.Refresher{
		Pipeline: p,
		Interval: cfg.Host.RefreshInterval,
		Logger:   logger,
		OnResult: func(res *pipeline.Result) { hb.SetLastRun(res.RunID) },
	}
	go func() {
		defer wg.Done()
		refresher.Run(workCtx)
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("relwidget: listening", "addr", cfg.Server.Addr, "refresh", cfg.Host.RefreshInterval)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newAnnotator(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*annotate.Annotator, func(), error) {
	if cfg.Annotate.Renderer != config.RendererBrowser {
		a := annotate.New(annotate.Native{}, logger)
		a.Timeout = cfg.Annotate.Timeout
		return a, func() {}, nil
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Bin:             cfg.Browser.Bin,
		NoSandbox:       cfg.Browser.NoSandbox,
		Stealth:         cfg.Browser.Stealth,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleInterval,
		Logger:          logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("browser: %w", err)
	}
	a := annotate.New(annotate.NewBrowser(mgr, logger), logger)
	a.Timeout = cfg.Annotate.Timeout
	return a, func() { mgr.Close() }, nil
}

func theme(cfg *config.Config) widget.Theme {
	t := widget.DefaultTheme()
	t.AppURL = cfg.App.URL
	if t.AppURL == "" {
		t.AppURL = "itms-apps://itunes.apple.com/app/id" + strconv.FormatInt(cfg.App.ID, 10)
	}
	return t
}
