package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"photo-vault/internal/logging"
)

const (
	// MaxSize is the bounding box edge, in pixels.
	MaxSize = 300
	// Quality is the JPEG encoding quality.
	Quality = 85
)

// Outcome describes what Generate did.
type Outcome int

const (
	// OutcomeGenerated means a new artifact was written.
	OutcomeGenerated Outcome = iota
	// OutcomeAlreadyPresent means the destination existed and was left alone.
	OutcomeAlreadyPresent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGenerated:
		return "generated"
	case OutcomeAlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// Deriver produces a thumbnail artifact at dst from the image at src.
// Implementations must not leave a partial file at dst on failure.
type Deriver interface {
	Generate(ctx context.Context, src, dst string) (Outcome, error)
}

// ImagingDeriver is the pure-Go Deriver built on disintegration/imaging.
type ImagingDeriver struct {
	Size    int
	Quality int
}

// NewImagingDeriver returns an ImagingDeriver using MaxSize and Quality.
func NewImagingDeriver() *ImagingDeriver {
	return &ImagingDeriver{Size: MaxSize, Quality: Quality}
}

// Generate implements Deriver.
func (d *ImagingDeriver) Generate(ctx context.Context, src, dst string) (Outcome, error) {
	if Exists(dst) {
		return OutcomeAlreadyPresent, nil
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return OutcomeGenerated, fmt.Errorf("failed to decode %s: %w", src, err)
	}
	if err := ctx.Err(); err != nil {
		return OutcomeGenerated, err
	}

	b := img.Bounds()
	logging.Debug("Decoded %s: %dx%d", filepath.Base(src), b.Dx(), b.Dy())

	thumb := Flatten(imaging.Fit(img, d.Size, d.Size, imaging.Lanczos))

	err = WriteAtomic(ctx, dst, func(w io.Writer) error {
		return imaging.Encode(w, thumb, imaging.JPEG, imaging.JPEGQuality(d.Quality))
	})
	if err != nil {
		return OutcomeGenerated, err
	}
	return OutcomeGenerated, nil
}

// Flatten composites img onto an opaque white canvas of the same size.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// WriteAtomic writes dst through a temp file in the same directory and
// renames it into place. The temp file is removed on any failure, and the
// rename is skipped once ctx is done.
func WriteAtomic(ctx context.Context, dst string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".thumb-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				logging.Warn("failed to remove temp file %s: %v", tmpPath, rmErr)
			}
		}
	}()

	if err = write(tmp); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set thumbnail permissions: %w", err)
	}
	if err = os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to move thumbnail into place: %w", err)
	}
	return nil
}
