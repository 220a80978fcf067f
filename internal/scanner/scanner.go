package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"photo-vault/internal/database"
	"photo-vault/internal/fingerprint"
	"photo-vault/internal/logging"
	"photo-vault/internal/metrics"
	"photo-vault/internal/progress"
	"photo-vault/internal/workers"
)

// DefaultExtensions are the image extensions catalogued by default.
var DefaultExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
	".dng":  true,
}

// DefaultExcludeDirs are directory names pruned from every walk.
var DefaultExcludeDirs = map[string]bool{
	"venv":         true,
	".venv":        true,
	"__pycache__":  true,
	"node_modules": true,
}

// Config configures a Scanner.
type Config struct {
	// Roots are scanned in order. Missing roots are skipped.
	Roots []string
	// Extensions are lower-case, with the leading dot.
	Extensions map[string]bool
	// ExcludeDirs are directory names pruned during the walk.
	ExcludeDirs map[string]bool
	// ExcludePaths are directories pruned by location, such as a thumbnail
	// directory that lives under a root.
	ExcludePaths []string
	// Workers is the number of concurrent fingerprint workers.
	Workers int
	// HashTimeout bounds a single file's fingerprint. Zero means no bound.
	HashTimeout time.Duration
	// ChannelBuffer is the capacity of the output channel.
	ChannelBuffer int
	// Observer receives FileHashed and FileSkipped events. May be nil.
	Observer progress.Observer
}

// DefaultConfig returns a Config for roots with the default filters.
func DefaultConfig(roots ...string) Config {
	return Config{
		Roots:         roots,
		Extensions:    DefaultExtensions,
		ExcludeDirs:   DefaultExcludeDirs,
		Workers:       workers.ForIO(8),
		HashTimeout:   2 * time.Minute,
		ChannelBuffer: 1000,
	}
}

// Stats are the scanner's running counters.
type Stats struct {
	Discovered int64 `json:"discovered"`
	Hashed     int64 `json:"hashed"`
	Skipped    int64 `json:"skipped"`
}

// Scanner walks roots and produces fingerprinted image records.
type Scanner struct {
	cfg          Config
	excludePaths map[string]bool

	discovered atomic.Int64
	hashed     atomic.Int64
	skipped    atomic.Int64

	mu  sync.Mutex
	err error
}

// New creates a Scanner. Zero-valued fields in cfg take their defaults.
func New(cfg Config) *Scanner {
	def := DefaultConfig()
	if cfg.Extensions == nil {
		cfg.Extensions = def.Extensions
	}
	if cfg.ExcludeDirs == nil {
		cfg.ExcludeDirs = def.ExcludeDirs
	}
	cfg.Workers = workers.Resolve(cfg.Workers, def.Workers)
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = def.ChannelBuffer
	}
	if cfg.Observer == nil {
		cfg.Observer = progress.Nop
	}

	excluded := make(map[string]bool, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		if p != "" {
			excluded[canonicalPath(p)] = true
		}
	}
	return &Scanner{cfg: cfg, excludePaths: excluded}
}

// candidate is a file selected by the walker.
type candidate struct {
	path string
	info fs.FileInfo
}

// Scan starts the walk and returns the record stream. The channel is
// closed once every root has been walked and every worker has finished,
// or ctx is canceled. Scan must be called at most once per Scanner.
func (s *Scanner) Scan(ctx context.Context) <-chan database.ImageRecord {
	out := make(chan database.ImageRecord, s.cfg.ChannelBuffer)

	go func() {
		defer close(out)

		start := time.Now()
		roots := normalizeRoots(s.cfg.Roots, s.cfg.ExcludeDirs)
		logging.Info("Starting scan of %d root(s) with %d workers", len(roots), s.cfg.Workers)
		metrics.ScannerWorkers.Set(float64(s.cfg.Workers))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)

		var walkErr error
		for _, root := range roots {
			if err := s.walk(gctx, root, func(c candidate) {
				g.Go(func() error {
					s.process(gctx, c, out)
					return nil
				})
			}); err != nil {
				walkErr = err
				break
			}
		}

		_ = g.Wait()

		if walkErr == nil {
			walkErr = ctx.Err()
		}
		s.setErr(walkErr)

		st := s.Stats()
		logging.Info("Scan complete: %d discovered, %d hashed, %d skipped in %v",
			st.Discovered, st.Hashed, st.Skipped, time.Since(start).Round(time.Millisecond))
	}()

	return out
}

// walk enumerates root and calls enqueue for every candidate.
func (s *Scanner) walk(ctx context.Context, root string, enqueue func(candidate)) error {
	logging.Debug("Walking %s", root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil // keep walking
		}

		if d.IsDir() {
			if s.cfg.ExcludeDirs[d.Name()] || s.excludePaths[path] {
				logging.Debug("Skipping excluded directory %s", path)
				return filepath.SkipDir
			}
			return nil
		}

		info, ok := s.candidateInfo(path, d)
		if !ok {
			return nil
		}

		s.discovered.Add(1)
		enqueue(candidate{path: path, info: info})
		return nil
	})
}

// candidateInfo returns the file info of a catalog candidate. A symlink
// is a candidate when its target is a regular file.
func (s *Scanner) candidateInfo(path string, d fs.DirEntry) (fs.FileInfo, bool) {
	name := d.Name()
	if strings.HasPrefix(name, ".") || !s.cfg.Extensions[strings.ToLower(filepath.Ext(name))] {
		return nil, false
	}

	switch {
	case d.Type().IsRegular():
		info, err := d.Info()
		if err != nil {
			logging.Warn("Error getting info for %s: %v", path, err)
			return nil, false
		}
		return info, true
	case d.Type()&fs.ModeSymlink != 0:
		info, err := os.Stat(path)
		if err != nil {
			logging.Debug("Skipping dangling symlink %s: %v", path, err)
			return nil, false
		}
		return info, info.Mode().IsRegular()
	default:
		return nil, false
	}
}

// process fingerprints one candidate and publishes its record.
func (s *Scanner) process(ctx context.Context, c candidate, out chan<- database.ImageRecord) {
	path := canonicalPath(c.path)

	start := time.Now()
	sum, err := fingerprint.FileWithTimeout(ctx, path, s.cfg.HashTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.skipped.Add(1)
		logging.Warn("Skipping %s: %v", path, err)
		progress.Emit(s.cfg.Observer, progress.Event{Kind: progress.FileSkipped, Path: path, Err: err})
		return
	}

	s.hashed.Add(1)
	progress.Emit(s.cfg.Observer, progress.Event{
		Kind:     progress.FileHashed,
		Path:     path,
		Count:    c.info.Size(),
		Duration: time.Since(start),
	})

	rec := database.ImageRecord{
		FileName:  filepath.Base(path),
		Path:      path,
		Extension: strings.ToLower(filepath.Ext(path)),
		Size:      c.info.Size(),
		ModTime:   c.info.ModTime(),
		Hash:      sum,
	}

	select {
	case out <- rec:
	case <-ctx.Done():
	}
}

// Stats returns the current counters.
func (s *Scanner) Stats() Stats {
	return Stats{
		Discovered: s.discovered.Load(),
		Hashed:     s.hashed.Load(),
		Skipped:    s.skipped.Load(),
	}
}

// Err returns the error that ended the walk, if any. Per-file failures are
// not reported here. Only meaningful after the Scan channel is closed.
func (s *Scanner) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Scanner) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// canonicalPath returns the absolute, symlink-resolved form of path,
// falling back to the absolute path when resolution fails.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// normalizeRoots canonicalizes roots, drops the ones that are not
// directories or that lie inside an excluded directory, and drops
// duplicates and roots nested inside another root.
func normalizeRoots(roots []string, excludeDirs map[string]bool) []string {
	var existing []string
	for _, r := range roots {
		if r == "" {
			continue
		}
		path := canonicalPath(r)
		if name, ok := excludedComponent(path, excludeDirs); ok {
			logging.Debug("Skipping search root %s: inside excluded directory %q", r, name)
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			if err == nil {
				err = errors.New("not a directory")
			}
			logging.Debug("Skipping search root %s: %v", r, err)
			continue
		}
		existing = append(existing, path)
	}

	var kept []string
	for i, r := range existing {
		redundant := false
		for j, other := range existing {
			if i == j {
				continue
			}
			if (r == other && j < i) || isWithin(other, r) {
				redundant = true
				break
			}
		}
		if redundant {
			logging.Debug("Skipping search root %s: covered by another root", r)
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// excludedComponent returns the first element of path named in excludeDirs.
func excludedComponent(path string, excludeDirs map[string]bool) (string, bool) {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "" && excludeDirs[part] {
			return part, true
		}
	}
	return "", false
}

// isWithin reports whether child is strictly below parent.
func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
