package thumbnail

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-vault/internal/database"
	"photo-vault/internal/indexer"
	"photo-vault/internal/progress"
	"photo-vault/internal/scanner"
)

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	pending   []database.PendingImage
	attached  map[int64]string
	listErr   error
	attachErr error
}

func newMemStore(pending ...database.PendingImage) *memStore {
	return &memStore{pending: pending, attached: make(map[int64]string)}
}

func (m *memStore) RecordsMissingThumbnail(_ context.Context, _ []string) ([]database.PendingImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []database.PendingImage
	for _, p := range m.pending {
		if _, ok := m.attached[p.ID]; !ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) AttachThumbnail(_ context.Context, id int64, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	m.attached[id] = path
	return nil
}

// blockingDeriver never finishes before ctx is done.
type blockingDeriver struct{}

func (blockingDeriver) Generate(ctx context.Context, _, _ string) (Outcome, error) {
	<-ctx.Done()
	return OutcomeGenerated, ctx.Err()
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[progress.Kind]int
}

func (c *countingObserver) Observe(e progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[progress.Kind]int)
	}
	c.counts[e.Kind]++
}

func TestDestinationPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/thumbs", "42_thumbnail.jpg"), DestinationPath("/thumbs", 42))
}

func TestRunGeneratesAndAttaches(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	saveImage(t, src, 800, 600, color.White)

	store := newMemStore(database.PendingImage{ID: 7, FileName: "a.jpg", Path: src, Extension: ".jpg"})
	obs := &countingObserver{}
	out := filepath.Join(dir, "thumbs")

	sum, err := NewGenerator(store, Config{OutputDir: out, Workers: 2, Observer: obs}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Total)
	assert.Equal(t, int64(1), sum.Processed)
	assert.Equal(t, int64(1), sum.Succeeded)
	assert.Zero(t, sum.Failed)
	assert.Zero(t, sum.AlreadyPresent)

	dst := filepath.Join(out, "7_thumbnail.jpg")
	assert.Equal(t, dst, store.attached[7])
	assert.True(t, Exists(dst))
	assert.Equal(t, 1, obs.counts[progress.ThumbnailSucceeded])
}

func TestRunMissingSourceIsSkipped(t *testing.T) {
	dir := t.TempDir()
	store := newMemStore(database.PendingImage{ID: 1, Path: filepath.Join(dir, "deleted.jpg"), Extension: ".jpg"})
	obs := &countingObserver{}

	sum, err := NewGenerator(store, Config{OutputDir: dir, Observer: obs}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.SkippedMissing)
	assert.Zero(t, sum.Succeeded)
	assert.Zero(t, sum.Failed)
	assert.Empty(t, store.attached, "row stays pending")
	assert.Equal(t, 1, obs.counts[progress.ThumbnailMissingSource])
}

func TestRunDecodeFailureIsCounted(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	good := filepath.Join(dir, "good.png")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))
	saveImage(t, good, 10, 10, color.Black)

	store := newMemStore(
		database.PendingImage{ID: 1, Path: bad, Extension: ".png"},
		database.PendingImage{ID: 2, Path: good, Extension: ".png"},
	)

	sum, err := NewGenerator(store, Config{OutputDir: filepath.Join(dir, "t")}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), sum.Processed)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Equal(t, int64(1), sum.Succeeded)
	assert.NotContains(t, store.attached, int64(1))
	assert.False(t, Exists(filepath.Join(dir, "t", "1_thumbnail.jpg")))
}

func TestRunAttachFailureIsCounted(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	saveImage(t, src, 10, 10, color.White)

	store := newMemStore(database.PendingImage{ID: 3, Path: src, Extension: ".jpg"})
	store.attachErr = errors.New("database is locked")

	sum, err := NewGenerator(store, Config{OutputDir: dir}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Zero(t, sum.Succeeded)
}

func TestRunListFailureIsFatal(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("no such table: images")

	_, err := NewGenerator(store, Config{OutputDir: t.TempDir()}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}

func TestRunExistingArtifactIsAttached(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	saveImage(t, src, 10, 10, color.White)

	out := filepath.Join(dir, "thumbs")
	saveImage(t, filepath.Join(out, "9_thumbnail.jpg"), 5, 5, color.Black)

	store := newMemStore(database.PendingImage{ID: 9, Path: src, Extension: ".jpg"})
	obs := &countingObserver{}

	sum, err := NewGenerator(store, Config{OutputDir: out, Observer: obs}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Succeeded)
	assert.Equal(t, int64(1), sum.AlreadyPresent)
	assert.Equal(t, filepath.Join(out, "9_thumbnail.jpg"), store.attached[9])
	assert.Equal(t, 1, obs.counts[progress.ThumbnailAlreadyPresent])
}

func TestRunTimeoutCountsAsFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	saveImage(t, src, 10, 10, color.White)

	store := newMemStore(database.PendingImage{ID: 1, Path: src, Extension: ".jpg"})
	gen := NewGenerator(store, Config{
		OutputDir: dir,
		Timeout:   20 * time.Millisecond,
		Deriver:   blockingDeriver{},
	})

	sum, err := gen.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Empty(t, store.attached)
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	saveImage(t, src, 10, 10, color.White)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newMemStore(database.PendingImage{ID: 1, Path: src, Extension: ".jpg"})
	sum, err := NewGenerator(store, Config{OutputDir: dir, Deriver: blockingDeriver{}}).Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Failed)
	assert.Empty(t, store.attached)
}

func TestNewGeneratorDefaults(t *testing.T) {
	g := NewGenerator(newMemStore(), Config{OutputDir: "thumbs"})

	assert.True(t, filepath.IsAbs(g.cfg.OutputDir))
	assert.GreaterOrEqual(t, g.cfg.Workers, 1)
	assert.Equal(t, SupportedExtensions, g.cfg.Extensions)
	assert.IsType(t, &ImagingDeriver{}, g.cfg.Deriver)
}

// TestCatalogThenThumbnails covers the full pipeline: two byte-identical
// JPEGs and one PNG catalogue to two rows and two thumbnails, and a second
// pass does no work.
func TestCatalogThenThumbnails(t *testing.T) {
	ctx := context.Background()
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	photos := filepath.Join(base, "photos")
	saveImage(t, filepath.Join(photos, "a.jpg"), 640, 480, color.RGBA{255, 0, 0, 255})
	data, err := os.ReadFile(filepath.Join(photos, "a.jpg"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(photos, "b.jpg"), data, 0o644))
	saveImage(t, filepath.Join(photos, "c.png"), 200, 100, color.NRGBA{0, 0, 255, 128})

	db, err := database.New(ctx, filepath.Join(base, "registry.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	sc := scanner.New(scanner.DefaultConfig(photos))
	res, err := indexer.New(db, indexer.Options{}).Run(ctx, sc.Scan(ctx))
	require.NoError(t, err)
	require.NoError(t, sc.Err())
	assert.Equal(t, int64(3), res.Scanned)
	assert.Equal(t, int64(2), res.Inserted)

	thumbs := filepath.Join(base, "thumbs")
	gen := NewGenerator(db, Config{OutputDir: thumbs})

	sum, err := gen.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Total)
	assert.Equal(t, int64(2), sum.Succeeded)

	entries, err := os.ReadDir(thumbs)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	stats, err := db.CountImages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.WithThumbnail)
	assert.Zero(t, stats.PendingThumbs)

	sum, err = gen.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
	assert.Zero(t, sum.Processed)
}

type gateFunc func(ctx context.Context) error

func (f gateFunc) Wait(ctx context.Context) error { return f(ctx) }

func TestRunWaitsOnGate(t *testing.T) {
	dir := t.TempDir()
	var pending []database.PendingImage
	for i := int64(1); i <= 3; i++ {
		src := filepath.Join(dir, "src", strconv.FormatInt(i, 10)+".png")
		saveImage(t, src, 20, 20, color.White)
		pending = append(pending, database.PendingImage{ID: i, Path: src, Extension: ".png"})
	}

	var mu sync.Mutex
	waits := 0
	gate := gateFunc(func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		waits++
		return nil
	})

	sum, err := NewGenerator(newMemStore(pending...), Config{OutputDir: filepath.Join(dir, "out"), Gate: gate}).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Succeeded)
	assert.Equal(t, 3, waits)
}

func TestRunGateErrorStopsDispatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	saveImage(t, src, 20, 20, color.White)
	store := newMemStore(database.PendingImage{ID: 1, Path: src, Extension: ".png"})

	gate := gateFunc(func(context.Context) error { return errors.New("held") })
	sum, err := NewGenerator(store, Config{OutputDir: filepath.Join(dir, "out"), Gate: gate}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Total)
	assert.Zero(t, sum.Processed)
	assert.Empty(t, store.attached)
}
