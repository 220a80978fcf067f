package vips

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"photo-vault/internal/logging"
	"photo-vault/internal/thumbnail"
)

// ErrUnavailable is returned when libvips has not been started.
var ErrUnavailable = errors.New("libvips not available")

var (
	initialized bool
	available   bool
	initMu      sync.Mutex
)

// Init starts libvips with conservative memory settings and routes its log
// output through the application logger. Safe to call more than once.
func Init() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	// Must be configured before Startup to respect LOG_LEVEL.
	vips.LoggingSettings(logHandler(logging.GetLevel()))

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	initialized = true
	available = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// logHandler maps the application level to a libvips level and handler.
func logHandler(level logging.LogLevel) (func(string, vips.LogLevel, string), vips.LogLevel) {
	switch level {
	case logging.LevelDebug:
		return func(domain string, l vips.LogLevel, msg string) {
			switch l {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}, vips.LogLevelInfo
	case logging.LevelInfo:
		return func(domain string, l vips.LogLevel, msg string) {
			switch l {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}, vips.LogLevelWarning
	default:
		return func(domain string, l vips.LogLevel, msg string) {
			if l >= vips.LogLevelError {
				logging.Error("[%s] %s", domain, msg)
			}
		}, vips.LogLevelError
	}
}

// Shutdown releases libvips. libvips cannot be restarted in the same
// process afterwards.
func Shutdown() {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		vips.Shutdown()
		initialized = false
		available = false
		logging.Info("libvips shutdown complete")
	}
}

// Available reports whether Init has succeeded and Shutdown not been called.
func Available() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return available
}

// Deriver implements thumbnail.Deriver on libvips.
type Deriver struct {
	Size    int
	Quality int
}

// NewDeriver returns a Deriver with the same box and quality as the
// pure-Go backend.
func NewDeriver() *Deriver {
	return &Deriver{Size: thumbnail.MaxSize, Quality: thumbnail.Quality}
}

// Generate implements thumbnail.Deriver.
func (d *Deriver) Generate(ctx context.Context, src, dst string) (thumbnail.Outcome, error) {
	if thumbnail.Exists(dst) {
		return thumbnail.OutcomeAlreadyPresent, nil
	}
	if !Available() {
		return thumbnail.OutcomeGenerated, ErrUnavailable
	}

	// SizeDown never enlarges; the thumbnail operation also applies EXIF
	// orientation.
	ref, err := vips.NewThumbnailWithSizeFromFile(src, d.Size, d.Size, vips.InterestingNone, vips.SizeDown)
	if err != nil {
		return thumbnail.OutcomeGenerated, fmt.Errorf("vips failed to load %s: %w", src, err)
	}
	defer ref.Close()

	logging.Debug("Vips thumbnail of %s: %dx%d", filepath.Base(src), ref.Width(), ref.Height())

	if err := ref.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return thumbnail.OutcomeGenerated, fmt.Errorf("vips colorspace conversion failed: %w", err)
	}
	if ref.HasAlpha() {
		if err := ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return thumbnail.OutcomeGenerated, fmt.Errorf("vips flatten failed: %w", err)
		}
	}

	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        d.Quality,
		StripMetadata:  true,
		OptimizeCoding: true,
	})
	if err != nil {
		return thumbnail.OutcomeGenerated, fmt.Errorf("vips export failed: %w", err)
	}

	err = thumbnail.WriteAtomic(ctx, dst, func(w io.Writer) error {
		_, err := w.Write(buf)
		return err
	})
	if err != nil {
		return thumbnail.OutcomeGenerated, err
	}
	return thumbnail.OutcomeGenerated, nil
}
