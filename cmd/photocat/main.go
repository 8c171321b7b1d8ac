package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"photo-catalog/internal/badge"
	"photo-catalog/internal/catalog"
	"photo-catalog/internal/config"
	"photo-catalog/internal/exiftool"
	"photo-catalog/internal/ingest"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metadata"
	"photo-catalog/internal/metrics"
	"photo-catalog/internal/search"
	"photo-catalog/internal/thumbnail"
	"photo-catalog/internal/watcher"
	"photo-catalog/internal/xmpsync"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (optional)")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	command := flag.Arg(0)

	if command == "version" {
		fmt.Printf("photocat %s (%s, built %s, %s)\n",
			config.Version, config.Commit, config.BuildTime, config.GoVersion)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.Fatal("configuration error: %v", err)
		}
		cfg = loaded
	}
	if cfg.Logging.ShowDebug {
		logging.SetDebug(true)
	}
	if err := cfg.EnsureDirs(); err != nil {
		logging.Fatal("failed to prepare directories: %v", err)
	}
	cfg.LogSummary()

	// Cancel on interrupt signals.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.Info("interrupted, shutting down")
		cancel()
	}()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logging.Fatal("startup failed: %v", err)
	}
	defer app.close()

	if err := app.run(ctx, command, flag.Args()[1:]); err != nil {
		logging.Error("%s failed: %v", command, err)
		os.Exit(1)
	}
}

// app wires the long-lived components behind the subcommands.
type app struct {
	cfg       *config.Config
	store     *catalog.Store
	extractor *metadata.Extractor
	deriver   *thumbnail.Deriver
	engine    *xmpsync.Engine
	badges    *badge.Scheduler
	searcher  *search.Engine
	pipeline  *ingest.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	metrics.InitializeMetrics()

	store, err := catalog.Open(ctx, cfg.Paths.Database)
	if err != nil {
		return nil, err
	}

	tool := exiftool.NewRunner("exiftool")
	if !tool.Available() {
		logging.Warn("exiftool not found on PATH; metadata extraction degraded")
	}

	extractor := metadata.NewExtractor(tool)
	deriver := thumbnail.New(tool, cfg)
	analyzer := xmpsync.NewAnalyzer(extractor)
	writer := xmpsync.NewWriter(tool)

	engine := xmpsync.NewEngine(store, extractor, analyzer, writer, nil)
	badges := badge.New(engine, analyzer.Invalidate)
	engine.SetBadges(badges)
	badges.Start()

	// Offline CLI: no model providers. Semantic search and embedding
	// generation need a provider wired in by the hosting application.
	searcher := search.NewEngine(store, nil, nil, cfg.Search)
	pipeline := ingest.New(store, extractor, deriver, engine, ingest.Providers{}, cfg)

	return &app{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		deriver:   deriver,
		engine:    engine,
		badges:    badges,
		searcher:  searcher,
		pipeline:  pipeline,
	}, nil
}

func (a *app) close() {
	a.badges.Stop()
	if err := a.store.Close(); err != nil {
		logging.Error("store close failed: %v", err)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "ingest":
		return a.runIngest(ctx, args)
	case "search":
		return a.runSearch(ctx, args)
	case "sync":
		return a.runSync(ctx, args)
	case "stats":
		return a.runStats(ctx)
	case "badge-refresh":
		return a.runBadgeRefresh(ctx)
	case "vacuum":
		return a.store.Vacuum(ctx)
	case "watch":
		return a.runWatch(ctx, args)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) runIngest(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: photocat ingest <dir>")
	}
	summary, err := a.pipeline.IngestDir(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("processed %d files: %d new, %d duplicates, %d skipped, %d failed\n",
		summary.Processed, summary.Succeeded, summary.Duplicates, summary.Skipped, summary.Failed)
	return nil
}

func (a *app) runSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fuzzy := fs.Bool("fuzzy", a.cfg.Search.FuzzyEnabled, "enable fuzzy tag matching")
	includeDesc := fs.Bool("desc", false, "match against descriptions")
	includeTitle := fs.Bool("title", false, "match against titles")
	max := fs.Int("max", a.cfg.Search.MaxResults, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := search.Query{
		Text:               joinArgs(fs.Args()),
		Mode:               search.ModeTags,
		Fuzzy:              *fuzzy,
		IncludeDescription: *includeDesc,
		IncludeTitle:       *includeTitle,
		MaxResults:         *max,
	}
	results, total, err := a.searcher.Search(ctx, q)
	if err != nil {
		return err
	}

	fmt.Printf("%d of %d candidates\n", len(results), total)
	for _, r := range results {
		fmt.Printf("%8.3f  %s\n", r.Score, r.Record.Filepath)
	}
	return nil
}

func (a *app) runSync(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: photocat sync import|export")
	}

	records, err := a.store.GetAll(ctx)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	switch args[0] {
	case "import":
		n, err := a.engine.ImportXMP(ctx, ids)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d of %d records\n", n, len(ids))
	case "export":
		n, err := a.engine.ExportXMP(ctx, ids, xmpsync.ModeSmart)
		if err != nil {
			return err
		}
		fmt.Printf("exported %d of %d records\n", n, len(ids))
	default:
		return fmt.Errorf("unknown sync direction %q", args[0])
	}
	return nil
}

func (a *app) runStats(ctx context.Context) error {
	stats, err := a.store.GetStats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("records:         %d\n", stats.Total)
	fmt.Printf("with embeddings: %d\n", stats.WithEmbeddings)
	fmt.Printf("with tags:       %d\n", stats.WithTags)
	fmt.Printf("monochrome:      %d\n", stats.Monochrome)
	fmt.Printf("raw:             %d\n", stats.Raw)
	return nil
}

func (a *app) runBadgeRefresh(ctx context.Context) error {
	records, err := a.store.GetAll(ctx)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	const reason = "manual-refresh"
	a.badges.Refresh(ids, reason)

	refreshed, failed := 0, 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.badges.Events():
			if ev.Reason != reason {
				continue
			}
			switch ev.Kind {
			case badge.EventRecordDone:
				if ev.Err != nil {
					failed++
				} else {
					refreshed++
				}
			case badge.EventBatchDone:
				fmt.Printf("refreshed %d records, %d failed\n", refreshed, failed)
				return nil
			}
		}
	}
}

func (a *app) runWatch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: photocat watch <dir> [dir...]")
	}

	// Surface badge completion events while watching.
	go func() {
		for ev := range a.badges.Events() {
			if ev.Kind == badge.EventRecordDone && ev.Err != nil {
				logging.Warn("badge refresh failed for record %d: %v", ev.ID, ev.Err)
			}
		}
	}()

	w := watcher.New(a.store, a.badges)
	err := w.Watch(ctx, args...)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `photocat - offline photographic catalog

Usage:
  photocat [-config file] <command> [arguments]

Commands:
  ingest <dir>           ingest all images under dir
  search [flags] <text>  query the catalog by tags
  sync import|export     synchronize catalog with XMP metadata
  stats                  print catalog counters
  badge-refresh          recompute sync state for every record
  vacuum                 compact the catalog database
  watch <dir> [dir...]   watch directories for sidecar changes
  version                print version information
`)
}
