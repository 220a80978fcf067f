package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"photo-vault/internal/database"
	"photo-vault/internal/filesystem"
	"photo-vault/internal/logging"
	"photo-vault/internal/metrics"
	"photo-vault/internal/progress"
	"photo-vault/internal/workers"
)

// SupportedExtensions are the extensions the thumbnail pass will attempt.
// DNG is catalogued but has no decoder.
var SupportedExtensions = []string{".webp", ".jpeg", ".png", ".bmp", ".jpg", ".tiff"}

var (
	// ErrTimeout is returned when a single derivation exceeds its deadline.
	ErrTimeout = errors.New("thumbnail generation timed out")
	// ErrAlreadyRunning is returned when Run is called during another run.
	ErrAlreadyRunning = errors.New("thumbnail run already in progress")
)

// Store is the registry surface the thumbnail pass needs.
type Store interface {
	RecordsMissingThumbnail(ctx context.Context, extensions []string) ([]database.PendingImage, error)
	AttachThumbnail(ctx context.Context, id int64, thumbnailPath string) error
}

// Config configures a Generator.
type Config struct {
	// OutputDir receives <id>_thumbnail.jpg artifacts.
	OutputDir string
	// Workers bounds concurrent derivations. Defaults to workers.ForCPU(4).
	Workers int
	// Timeout bounds a single derivation. Zero means no bound.
	Timeout time.Duration
	// Deriver defaults to NewImagingDeriver().
	Deriver Deriver
	// Extensions defaults to SupportedExtensions.
	Extensions []string
	// Observer receives per-item events. May be nil.
	Observer progress.Observer
	// Gate, when set, is waited on before each derivation is dispatched.
	Gate Gate
}

// Gate holds back new work, for example while memory is under pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// Summary holds the counters of one thumbnail pass.
type Summary struct {
	Total          int64         `json:"total"`
	Processed      int64         `json:"processed"`
	SkippedMissing int64         `json:"skippedMissing"`
	Succeeded      int64         `json:"succeeded"`
	Failed         int64         `json:"failed"`
	AlreadyPresent int64         `json:"alreadyPresent"`
	Duration       time.Duration `json:"duration"`
}

// Generator drives a Deriver over pending registry rows.
type Generator struct {
	store Store
	cfg   Config

	processed      atomic.Int64
	skippedMissing atomic.Int64
	succeeded      atomic.Int64
	failed         atomic.Int64
	alreadyPresent atomic.Int64

	mu      sync.Mutex
	running bool
}

// NewGenerator creates a Generator. OutputDir is made absolute so that the
// attached paths do not depend on the working directory.
func NewGenerator(store Store, cfg Config) *Generator {
	if abs, err := filepath.Abs(cfg.OutputDir); err == nil {
		cfg.OutputDir = abs
	}
	cfg.Workers = workers.Resolve(cfg.Workers, workers.ForCPU(4))
	if cfg.Deriver == nil {
		cfg.Deriver = NewImagingDeriver()
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = SupportedExtensions
	}
	if cfg.Observer == nil {
		cfg.Observer = progress.Nop
	}
	return &Generator{store: store, cfg: cfg}
}

// DestinationPath returns the artifact path for registry row id.
func DestinationPath(outputDir string, id int64) string {
	return filepath.Join(outputDir, strconv.FormatInt(id, 10)+"_thumbnail.jpg")
}

// Run derives and attaches a thumbnail for every pending row. Failure to
// list pending rows aborts the pass; per-item failures are only counted.
func (g *Generator) Run(ctx context.Context) (Summary, error) {
	if !g.tryStart() {
		return Summary{}, ErrAlreadyRunning
	}
	defer g.finish()

	metrics.ThumbnailIsRunning.Set(1)
	defer metrics.ThumbnailIsRunning.Set(0)
	metrics.ThumbnailRunsTotal.Inc()
	metrics.ThumbnailWorkers.Set(float64(g.cfg.Workers))

	start := time.Now()
	g.resetCounters()

	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("failed to create thumbnail directory %s: %w", g.cfg.OutputDir, err)
	}

	pending, err := g.store.RecordsMissingThumbnail(ctx, g.cfg.Extensions)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list images missing thumbnails: %w", err)
	}

	logging.Info("Generating thumbnails for %d images with %d workers", len(pending), g.cfg.Workers)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)

	for _, p := range pending {
		if egCtx.Err() != nil {
			break
		}
		if g.cfg.Gate != nil {
			if err := g.cfg.Gate.Wait(egCtx); err != nil {
				break
			}
		}
		eg.Go(func() error {
			g.process(egCtx, p)
			return nil
		})
	}
	_ = eg.Wait()

	sum := g.summary(int64(len(pending)))
	sum.Duration = time.Since(start)
	metrics.ThumbnailLastRunDuration.Set(sum.Duration.Seconds())

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

// process handles one pending row.
func (g *Generator) process(ctx context.Context, p database.PendingImage) {
	if _, err := filesystem.StatWithRetry(p.Path, filesystem.DefaultRetryConfig()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Warn("Source missing for image %d: %s", p.ID, p.Path)
			g.skippedMissing.Add(1)
			g.processed.Add(1)
			progress.Emit(g.cfg.Observer, progress.Event{Kind: progress.ThumbnailMissingSource, ID: p.ID, Path: p.Path})
			return
		}
		g.fail(ctx, p, fmt.Errorf("cannot access source: %w", err))
		return
	}

	dst := DestinationPath(g.cfg.OutputDir, p.ID)
	start := time.Now()

	outcome, err := g.generate(ctx, p.Path, dst)
	if err != nil {
		g.fail(ctx, p, err)
		return
	}

	if err := g.store.AttachThumbnail(ctx, p.ID, dst); err != nil {
		g.fail(ctx, p, fmt.Errorf("failed to attach thumbnail: %w", err))
		return
	}

	g.succeeded.Add(1)
	g.processed.Add(1)

	if outcome == OutcomeAlreadyPresent {
		g.alreadyPresent.Add(1)
		logging.Debug("Thumbnail already present for image %d: %s", p.ID, dst)
		progress.Emit(g.cfg.Observer, progress.Event{Kind: progress.ThumbnailAlreadyPresent, ID: p.ID, Path: dst})
		return
	}

	logging.Debug("Generated thumbnail for image %d: %s", p.ID, dst)
	progress.Emit(g.cfg.Observer, progress.Event{
		Kind:     progress.ThumbnailSucceeded,
		ID:       p.ID,
		Path:     dst,
		Duration: time.Since(start),
	})
}

// fail records a failed item. Items interrupted by cancellation of the
// whole run are not counted.
func (g *Generator) fail(ctx context.Context, p database.PendingImage, err error) {
	if ctx.Err() != nil && !errors.Is(err, ErrTimeout) {
		return
	}
	logging.Warn("Thumbnail failed for image %d (%s): %v", p.ID, p.Path, err)
	g.failed.Add(1)
	g.processed.Add(1)
	progress.Emit(g.cfg.Observer, progress.Event{Kind: progress.ThumbnailFailed, ID: p.ID, Path: p.Path, Err: err})
}

// generate runs the Deriver bounded by the per-item timeout.
func (g *Generator) generate(ctx context.Context, src, dst string) (Outcome, error) {
	if g.cfg.Timeout <= 0 {
		return g.cfg.Deriver.Generate(ctx, src, dst)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)

	go func() {
		outcome, err := g.cfg.Deriver.Generate(ctx, src, dst)
		done <- result{outcome: outcome, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.outcome, fmt.Errorf("%w after %v", ErrTimeout, g.cfg.Timeout)
		}
		return r.outcome, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return OutcomeGenerated, fmt.Errorf("%w after %v", ErrTimeout, g.cfg.Timeout)
		}
		return OutcomeGenerated, ctx.Err()
	}
}

func (g *Generator) summary(total int64) Summary {
	return Summary{
		Total:          total,
		Processed:      g.processed.Load(),
		SkippedMissing: g.skippedMissing.Load(),
		Succeeded:      g.succeeded.Load(),
		Failed:         g.failed.Load(),
		AlreadyPresent: g.alreadyPresent.Load(),
	}
}

func (g *Generator) resetCounters() {
	g.processed.Store(0)
	g.skippedMissing.Store(0)
	g.succeeded.Store(0)
	g.failed.Store(0)
	g.alreadyPresent.Store(0)
}

func (g *Generator) tryStart() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

func (g *Generator) finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}
