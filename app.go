package main

import (
	"context"
	"fmt"
	"time"

	"photo-vault/internal/database"
	"photo-vault/internal/indexer"
	"photo-vault/internal/logging"
	"photo-vault/internal/memory"
	"photo-vault/internal/metrics"
	"photo-vault/internal/progress"
	"photo-vault/internal/scanner"
	"photo-vault/internal/server"
	"photo-vault/internal/startup"
	"photo-vault/internal/thumbnail"
	"photo-vault/internal/vips"
	"photo-vault/internal/watcher"
	"photo-vault/internal/workers"
)

const statsInterval = 30 * time.Second

// app holds the components shared by every subcommand.
type app struct {
	cfg      *startup.Config
	db       *database.Database
	tracker  *progress.Tracker
	observer progress.Observer
	deriver  thumbnail.Deriver
	vipsUp   bool
	memory   *memory.Monitor

	server    *server.Server
	collector *metrics.Collector
}

func newApp(ctx context.Context, cfg *startup.Config) (*app, error) {
	dbStart := time.Now()
	db, err := database.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}
	startup.LogDatabaseInit(cfg.DatabasePath, time.Since(dbStart))

	a := &app{
		cfg:     cfg,
		db:      db,
		tracker: progress.NewTracker(),
	}
	a.observer = a.tracker
	a.selectDeriver()

	a.memory = memory.NewMonitor(memory.DefaultConfig())
	a.memory.Start()

	if cfg.MetricsEnabled {
		if err := a.startOperatorServer(); err != nil {
			a.memory.Stop()
			_ = db.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) selectDeriver() {
	a.deriver = thumbnail.NewImagingDeriver()
	active := startup.BackendImaging

	if a.cfg.ThumbnailBackend == startup.BackendVips {
		if err := vips.Init(); err != nil {
			logging.Warn("libvips initialization failed: %v", err)
		} else if vips.Available() {
			a.deriver = vips.NewDeriver()
			a.vipsUp = true
			active = startup.BackendVips
		}
	}
	startup.LogThumbnailBackend(a.cfg.ThumbnailBackend, active)
}

func (a *app) startOperatorServer() error {
	metrics.InitializeMetrics()
	info := startup.GetBuildInfo()
	metrics.AppInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)

	a.observer = progress.Multi(a.tracker, metrics.NewProgressObserver())

	a.server = server.New(":"+a.cfg.MetricsPort, server.Deps{
		Progress: a.tracker,
		Stats:    a.db,
		Images:   a.db,
		Version:  info.Version,
	})
	if err := a.server.Start(); err != nil {
		return fmt.Errorf("failed to start operator server: %w", err)
	}
	startup.LogHTTPRoutes(a.server.Router(), a.cfg.MetricsPort)

	a.collector = metrics.NewCollector(a.db, a.cfg.DatabasePath, statsInterval)
	a.collector.Start()
	return nil
}

// excludePaths keeps the application's own output out of the catalog.
func (a *app) excludePaths() []string {
	return []string{a.cfg.ThumbnailDir, a.cfg.DatabaseDir}
}

func (a *app) excludeDirs() map[string]bool {
	if set := a.cfg.ExcludeDirSet(); set != nil {
		return set
	}
	return scanner.DefaultExcludeDirs
}

// catalog scans roots and records new images.
func (a *app) catalog(ctx context.Context, roots []string) (indexer.Result, error) {
	startup.LogPhaseStart("catalog")
	a.tracker.SetPhase("catalog")
	defer a.tracker.SetPhase("idle")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sc := scanner.DefaultConfig(roots...)
	sc.ExcludeDirs = a.excludeDirs()
	sc.ExcludePaths = a.excludePaths()
	sc.Workers = workers.Resolve(a.cfg.ScanWorkers, sc.Workers)
	sc.HashTimeout = a.cfg.HashTimeout
	sc.Observer = a.observer
	s := scanner.New(sc)

	idx := indexer.New(a.db, indexer.Options{BatchSize: a.cfg.BatchSize, Observer: a.observer})
	res, err := idx.Run(ctx, s.Scan(ctx))
	if err != nil {
		return res, fmt.Errorf("catalog failed: %w", err)
	}
	if err := s.Err(); err != nil {
		return res, fmt.Errorf("catalog walk failed: %w", err)
	}

	st := s.Stats()
	startup.LogCatalogSummary(st.Discovered, st.Hashed, st.Skipped,
		res.Scanned, res.Inserted, res.Batches, res.Duration)
	return res, nil
}

// thumbnails derives artifacts for every pending registry row.
func (a *app) thumbnails(ctx context.Context) (thumbnail.Summary, error) {
	startup.LogPhaseStart("thumbnails")
	a.tracker.SetPhase("thumbnails")
	defer a.tracker.SetPhase("idle")

	g := thumbnail.NewGenerator(a.db, thumbnail.Config{
		OutputDir: a.cfg.ThumbnailDir,
		Workers:   a.cfg.ThumbnailWorkers,
		Timeout:   a.cfg.ThumbnailTimeout,
		Deriver:   a.deriver,
		Observer:  a.observer,
		Gate:      a.memory,
	})
	sum, err := g.Run(ctx)
	if err != nil {
		return sum, fmt.Errorf("thumbnail pass failed: %w", err)
	}
	startup.LogThumbnailSummary(sum.Total, sum.Succeeded, sum.AlreadyPresent,
		sum.SkippedMissing, sum.Failed, sum.Duration)
	return sum, nil
}

// runAll runs the catalog pass followed by the thumbnail pass.
func (a *app) runAll(ctx context.Context, roots []string) error {
	if _, err := a.catalog(ctx, roots); err != nil {
		return err
	}
	_, err := a.thumbnails(ctx)
	return err
}

// watch runs both passes, then repeats them after each debounced batch of
// filesystem changes until ctx is canceled.
func (a *app) watch(ctx context.Context) error {
	roots := a.cfg.Roots()
	if err := a.runAll(ctx, roots); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	w, err := watcher.New(roots, func(ctx context.Context, changes []watcher.Change) {
		logging.Info("Detected %d filesystem changes, re-running", len(changes))
		if err := a.runAll(ctx, roots); err != nil && ctx.Err() == nil {
			logging.Error("Re-run failed: %v", err)
		}
	}, watcher.Options{
		Debounce:     a.cfg.WatchDebounce,
		Extensions:   scanner.DefaultExtensions,
		ExcludeDirs:  a.excludeDirs(),
		ExcludePaths: a.excludePaths(),
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	startup.LogPhaseStart("watching")
	a.tracker.SetPhase("watching")
	return w.Run(ctx)
}

func (a *app) shutdown(ctx context.Context) {
	a.memory.Stop()

	if a.collector != nil {
		startup.LogShutdownStep("Stopping metrics collector")
		a.collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	if a.server != nil {
		startup.LogShutdownStep("Shutting down operator server")
		if err := a.server.Shutdown(ctx); err != nil {
			logging.Warn("Server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Operator server stopped")
		}
	}

	startup.LogShutdownStep("Closing registry")
	if err := a.db.Close(); err != nil {
		logging.Warn("Registry close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Registry closed")
	}

	if a.vipsUp {
		vips.Shutdown()
	}
	startup.LogShutdownComplete()
}
