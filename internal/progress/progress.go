package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies what happened.
type Kind string

const (
	// FileHashed is emitted when a candidate file was fingerprinted.
	FileHashed Kind = "file_hashed"
	// FileSkipped is emitted when a candidate could not be read or hashed.
	FileSkipped Kind = "file_skipped"
	// BatchFlushed is emitted after each committed registry batch.
	// Count holds the rows inserted by the batch, Total the rows scanned so far.
	BatchFlushed Kind = "batch_flushed"
	// ThumbnailSucceeded is emitted when a thumbnail was written and attached.
	ThumbnailSucceeded Kind = "thumbnail_succeeded"
	// ThumbnailAlreadyPresent is emitted when an artifact already existed on
	// disk and only the registry was updated.
	ThumbnailAlreadyPresent Kind = "thumbnail_already_present"
	// ThumbnailFailed is emitted when decode, encode, write or attach failed.
	ThumbnailFailed Kind = "thumbnail_failed"
	// ThumbnailMissingSource is emitted when the source file no longer exists.
	ThumbnailMissingSource Kind = "thumbnail_missing_source"
)

// Event is a single progress notification.
type Event struct {
	Kind     Kind
	Path     string
	ID       int64
	Count    int64
	Total    int64
	Duration time.Duration
	Err      error
}

// Observer receives progress events. Implementations must be safe for
// concurrent use; events arrive from worker goroutines.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Nop discards every event.
var Nop Observer = ObserverFunc(func(Event) {})

// Emit sends e to o, ignoring a nil observer.
func Emit(o Observer, e Event) {
	if o != nil {
		o.Observe(e)
	}
}

type multi []Observer

func (m multi) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Multi fans events out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	out := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// Snapshot is a point-in-time copy of Tracker counters.
type Snapshot struct {
	Phase             string    `json:"phase"`
	StartedAt         time.Time `json:"startedAt,omitempty"`
	FilesHashed       int64     `json:"filesHashed"`
	FilesSkipped      int64     `json:"filesSkipped"`
	RecordsScanned    int64     `json:"recordsScanned"`
	RecordsInserted   int64     `json:"recordsInserted"`
	Batches           int64     `json:"batches"`
	ThumbnailsOK      int64     `json:"thumbnailsSucceeded"`
	ThumbnailsPresent int64     `json:"thumbnailsAlreadyPresent"`
	ThumbnailsFailed  int64     `json:"thumbnailsFailed"`
	ThumbnailsMissing int64     `json:"thumbnailsSkippedMissing"`
	LastError         string    `json:"lastError,omitempty"`
	LastErrorPath     string    `json:"lastErrorPath,omitempty"`
}

// Tracker accumulates events into counters that can be read while a run is
// in progress.
type Tracker struct {
	filesHashed       atomic.Int64
	filesSkipped      atomic.Int64
	recordsScanned    atomic.Int64
	recordsInserted   atomic.Int64
	batches           atomic.Int64
	thumbnailsOK      atomic.Int64
	thumbnailsPresent atomic.Int64
	thumbnailsFailed  atomic.Int64
	thumbnailsMissing atomic.Int64

	mu            sync.RWMutex
	phase         string
	startedAt     time.Time
	lastError     string
	lastErrorPath string
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{phase: "idle"}
}

// SetPhase records the pass currently running ("catalog", "thumbnails",
// "idle") and resets the start time.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	t.startedAt = time.Now()
}

// Observe implements Observer.
func (t *Tracker) Observe(e Event) {
	switch e.Kind {
	case FileHashed:
		t.filesHashed.Add(1)
	case FileSkipped:
		t.filesSkipped.Add(1)
	case BatchFlushed:
		t.batches.Add(1)
		t.recordsInserted.Add(e.Count)
		t.recordsScanned.Store(e.Total)
	case ThumbnailSucceeded:
		t.thumbnailsOK.Add(1)
	case ThumbnailAlreadyPresent:
		t.thumbnailsPresent.Add(1)
	case ThumbnailFailed:
		t.thumbnailsFailed.Add(1)
	case ThumbnailMissingSource:
		t.thumbnailsMissing.Add(1)
	}

	if e.Err != nil {
		t.mu.Lock()
		t.lastError = e.Err.Error()
		t.lastErrorPath = e.Path
		t.mu.Unlock()
	}
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	phase, startedAt := t.phase, t.startedAt
	lastErr, lastErrPath := t.lastError, t.lastErrorPath
	t.mu.RUnlock()

	return Snapshot{
		Phase:             phase,
		StartedAt:         startedAt,
		FilesHashed:       t.filesHashed.Load(),
		FilesSkipped:      t.filesSkipped.Load(),
		RecordsScanned:    t.recordsScanned.Load(),
		RecordsInserted:   t.recordsInserted.Load(),
		Batches:           t.batches.Load(),
		ThumbnailsOK:      t.thumbnailsOK.Load(),
		ThumbnailsPresent: t.thumbnailsPresent.Load(),
		ThumbnailsFailed:  t.thumbnailsFailed.Load(),
		ThumbnailsMissing: t.thumbnailsMissing.Load(),
		LastError:         lastErr,
		LastErrorPath:     lastErrPath,
	}
}
