package vips

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-vault/internal/logging"
	"photo-vault/internal/thumbnail"
)

// libvips cannot be restarted after Shutdown, so no test here calls it.

func requireVips(t *testing.T) {
	t.Helper()
	if err := Init(); err != nil {
		t.Skipf("libvips not available: %v", err)
	}
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{40, 90, 200, 255}}, image.Point{}, draw.Src)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
}

func decodedSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestInitIdempotent(t *testing.T) {
	requireVips(t)
	require.NoError(t, Init())
	assert.True(t, Available())
}

func TestGenerateFitsBox(t *testing.T) {
	requireVips(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "big.jpg")
	dst := filepath.Join(dir, "1_thumbnail.jpg")
	writeJPEG(t, src, 2000, 1500)

	outcome, err := NewDeriver().Generate(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, thumbnail.OutcomeGenerated, outcome)

	w, h := decodedSize(t, dst)
	assert.Equal(t, 300, w)
	assert.Equal(t, 225, h)
}

func TestGenerateDoesNotUpscale(t *testing.T) {
	requireVips(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "small.jpg")
	dst := filepath.Join(dir, "2_thumbnail.jpg")
	writeJPEG(t, src, 100, 80)

	_, err := NewDeriver().Generate(context.Background(), src, dst)
	require.NoError(t, err)

	w, h := decodedSize(t, dst)
	assert.Equal(t, 100, w)
	assert.Equal(t, 80, h)
}

func TestGenerateFlattensAlpha(t *testing.T) {
	requireVips(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "clear.png")
	dst := filepath.Join(dir, "3_thumbnail.jpg")

	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 40, 40))))
	require.NoError(t, f.Close())

	_, err = NewDeriver().Generate(context.Background(), src, dst)
	require.NoError(t, err)

	out, err := os.Open(dst)
	require.NoError(t, err)
	defer out.Close()
	img, err := jpeg.Decode(out)
	require.NoError(t, err)
	r, _, _, _ := img.At(20, 20).RGBA()
	assert.Greater(t, r>>8, uint32(240))
}

func TestGenerateExistingDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "4_thumbnail.jpg")
	require.NoError(t, os.WriteFile(dst, []byte("kept"), 0o644))

	// No libvips needed: an existing artifact short-circuits.
	outcome, err := NewDeriver().Generate(context.Background(), filepath.Join(dir, "missing.jpg"), dst)
	require.NoError(t, err)
	assert.Equal(t, thumbnail.OutcomeAlreadyPresent, outcome)
}

func TestGenerateDecodeFailure(t *testing.T) {
	requireVips(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.jpg")
	dst := filepath.Join(dir, "5_thumbnail.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0o644))

	_, err := NewDeriver().Generate(context.Background(), src, dst)
	require.Error(t, err)
	assert.False(t, thumbnail.Exists(dst))
}

func TestLogHandlerLevels(t *testing.T) {
	for _, level := range []logging.LogLevel{logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError} {
		handler, _ := logHandler(level)
		require.NotNil(t, handler)
	}
}
