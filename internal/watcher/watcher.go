package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"photo-vault/internal/logging"
	"photo-vault/internal/metrics"
)

// Op is the kind of filesystem change.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
	// OpOverflow means the kernel queue overflowed and changes were lost.
	OpOverflow
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	case OpOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Change is one debounced filesystem change.
type Change struct {
	Path string
	Op   Op
	Time time.Time
}

// Handler receives each debounced batch.
type Handler func(ctx context.Context, changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is delivered.
	Debounce time.Duration
	// Extensions selects the files whose changes matter.
	Extensions map[string]bool
	// ExcludeDirs are directory names never watched.
	ExcludeDirs map[string]bool
	// ExcludePaths are directories never watched, by location.
	ExcludePaths []string
}

// Watcher watches a set of roots.
type Watcher struct {
	roots        []string
	handler      Handler
	opts         Options
	excludePaths map[string]bool

	fsw     *fsnotify.Watcher
	watched map[string]bool
}

// New creates a Watcher. Call Run to start it.
func New(roots []string, handler Handler, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 5 * time.Second
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(opts.ExcludePaths))
	for _, p := range opts.ExcludePaths {
		excluded[canonicalPath(p)] = true
	}

	canonical := make([]string, 0, len(roots))
	seen := make(map[string]bool, len(roots))
	for _, r := range roots {
		c := canonicalPath(r)
		if !seen[c] {
			seen[c] = true
			canonical = append(canonical, c)
		}
	}

	return &Watcher{
		roots:        canonical,
		handler:      handler,
		opts:         opts,
		excludePaths: excluded,
		fsw:          fsw,
		watched:      make(map[string]bool),
	}, nil
}

// Run watches until ctx is canceled. Missing roots are skipped; Run fails
// only if no root could be watched.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for _, root := range w.roots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			logging.Debug("Not watching %s: not a directory", root)
			continue
		}
		if w.excluded(root) {
			logging.Debug("Not watching %s: inside an excluded directory", root)
			continue
		}
		w.addRecursive(root)
	}
	if len(w.watched) == 0 {
		return errors.New("no directories to watch")
	}

	logging.Info("Watching %d directories (debounce %v)", len(w.watched), w.opts.Debounce)

	pending := make(map[string]Change)
	var timer *time.Timer
	var timerC <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.opts.Debounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.opts.Debounce)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if c, relevant := w.handleEvent(event); relevant {
				pending[c.Path] = c
				schedule()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			metrics.WatcherErrors.Inc()
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logging.Warn("Watcher event queue overflowed, scheduling a full re-run")
				pending[""] = Change{Op: OpOverflow, Time: time.Now()}
				schedule()
				continue
			}
			logging.Warn("Watcher error: %v", err)

		case <-timerC:
			timerC = nil
			batch := drain(pending)
			logging.Info("Detected %d filesystem change(s)", len(batch))
			w.handler(ctx, batch)
		}
	}
}

// drain empties pending into a path-ordered slice.
func drain(pending map[string]Change) []Change {
	batch := make([]Change, 0, len(pending))
	for k, c := range pending {
		batch = append(batch, c)
		delete(pending, k)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	return batch
}

// handleEvent records metrics, watches new directories, and reports
// whether the event should trigger a run.
func (w *Watcher) handleEvent(event fsnotify.Event) (Change, bool) {
	op := convertOp(event.Op)
	metrics.WatcherEventsTotal.WithLabelValues(opLabel(event.Op)).Inc()

	if w.ignored(event.Name) {
		return Change{}, false
	}

	change := Change{Path: event.Name, Op: op, Time: time.Now()}

	switch op {
	case OpCreate:
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// Files moved in with the directory produce no events of their own.
			w.addRecursive(event.Name)
			return change, true
		}
		return change, w.isImage(event.Name)
	case OpWrite:
		return change, w.isImage(event.Name)
	case OpRemove, OpRename:
		if w.watched[event.Name] {
			delete(w.watched, event.Name)
			metrics.WatcherDirectories.Set(float64(len(w.watched)))
		}
		return change, false
	default:
		return change, false
	}
}

func (w *Watcher) isImage(path string) bool {
	return w.opts.Extensions[strings.ToLower(filepath.Ext(path))]
}

// ignored reports whether path is hidden or excluded.
func (w *Watcher) ignored(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".") || w.excluded(path)
}

// excluded reports whether path is, or lies inside, an excluded directory.
func (w *Watcher) excluded(path string) bool {
	for dir := path; ; dir = filepath.Dir(dir) {
		if w.excludePaths[dir] || w.opts.ExcludeDirs[filepath.Base(dir)] {
			return true
		}
		if parent := filepath.Dir(dir); parent == dir {
			return false
		}
	}
}

// canonicalPath returns the absolute, symlink-resolved form of path.
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

// addRecursive watches dir and every non-excluded directory below it.
func (w *Watcher) addRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Debug("Watcher skipping %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.opts.ExcludeDirs[d.Name()] || w.excludePaths[path] {
			return filepath.SkipDir
		}
		if w.watched[path] {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			metrics.WatcherErrors.Inc()
			logging.Warn("Failed to watch %s: %v", path, err)
			return nil
		}
		w.watched[path] = true
		return nil
	})
	metrics.WatcherDirectories.Set(float64(len(w.watched)))
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return -1
	}
}

func opLabel(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return "chmod"
	}
}
