package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"photo-vault/internal/database"
	"photo-vault/internal/logging"
	"photo-vault/internal/metrics"
	"photo-vault/internal/progress"
)

// DefaultBatchSize is the number of records committed per transaction.
const DefaultBatchSize = 500

// ErrAlreadyRunning is returned when Run is called while another run on
// the same Indexer is still in progress.
var ErrAlreadyRunning = errors.New("catalog run already in progress")

// Store persists batches of records.
type Store interface {
	UpsertBatch(ctx context.Context, records []database.ImageRecord) (int64, error)
}

// Options configures an Indexer.
type Options struct {
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// Observer receives a BatchFlushed event after every commit. May be nil.
	Observer progress.Observer
}

// Result summarizes one catalog run.
type Result struct {
	Scanned  int64         `json:"scanned"`
	Inserted int64         `json:"inserted"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// Indexer coordinates batched registry writes.
type Indexer struct {
	store     Store
	batchSize int
	observer  progress.Observer

	mu      sync.Mutex
	running bool
}

// New creates an Indexer writing to store.
func New(store Store, opts Options) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Observer == nil {
		opts.Observer = progress.Nop
	}
	return &Indexer{
		store:     store,
		batchSize: opts.BatchSize,
		observer:  opts.Observer,
	}
}

// BatchSize returns the configured batch size.
func (idx *Indexer) BatchSize() int {
	return idx.batchSize
}

// Run drains records into the store. It returns when the channel is
// closed, a flush fails, or ctx is canceled. On cancellation the pending
// partial batch is discarded and ctx.Err() is returned.
func (idx *Indexer) Run(ctx context.Context, records <-chan database.ImageRecord) (Result, error) {
	if !idx.tryStart() {
		return Result{}, ErrAlreadyRunning
	}
	defer idx.finish()

	metrics.CatalogIsRunning.Set(1)
	defer metrics.CatalogIsRunning.Set(0)
	metrics.CatalogRunsTotal.Inc()

	start := time.Now()
	logging.Info("Starting catalog run (batch size %d)", idx.batchSize)

	res, err := idx.drain(ctx, records)
	res.Duration = time.Since(start)

	metrics.CatalogLastRunDuration.Set(res.Duration.Seconds())
	metrics.CatalogLastRunTimestamp.Set(float64(time.Now().Unix()))

	if err != nil {
		metrics.CatalogErrors.Inc()
		return res, err
	}

	logging.Info("Catalog run complete: %d scanned, %d inserted, %d batches in %v",
		res.Scanned, res.Inserted, res.Batches, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (idx *Indexer) drain(ctx context.Context, records <-chan database.ImageRecord) (Result, error) {
	var res Result
	batch := make([]database.ImageRecord, 0, idx.batchSize)

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				logging.Info("Catalog canceled, discarding %d unflushed records", len(batch))
			}
			return res, ctx.Err()

		case rec, ok := <-records:
			if !ok {
				if err := ctx.Err(); err != nil {
					return res, err
				}
				if len(batch) > 0 {
					if err := idx.flush(ctx, batch, &res); err != nil {
						return res, err
					}
				}
				return res, nil
			}

			res.Scanned++
			batch = append(batch, rec)
			if len(batch) < idx.batchSize {
				continue
			}

			// Cancellation wins over a full buffer.
			if err := ctx.Err(); err != nil {
				logging.Info("Catalog canceled, discarding %d unflushed records", len(batch))
				return res, err
			}
			if err := idx.flush(ctx, batch, &res); err != nil {
				return res, err
			}
			batch = batch[:0]
		}
	}
}

// flush commits batch as one transaction and updates res.
func (idx *Indexer) flush(ctx context.Context, batch []database.ImageRecord, res *Result) error {
	start := time.Now()

	inserted, err := idx.store.UpsertBatch(ctx, batch)
	if err != nil {
		metrics.CatalogBatchesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("batch %d (%d records): %w", res.Batches+1, len(batch), err)
	}

	res.Batches++
	res.Inserted += inserted

	if dropped := int64(len(batch)) - inserted; dropped > 0 {
		metrics.CatalogRecordsDropped.Add(float64(dropped))
		logging.Debug("Batch %d: %d of %d records already registered (duplicate path or content)",
			res.Batches, dropped, len(batch))
	}

	logging.Debug("Batch %d committed: %d inserted in %v", res.Batches, inserted, time.Since(start))

	progress.Emit(idx.observer, progress.Event{
		Kind:     progress.BatchFlushed,
		Count:    inserted,
		Total:    res.Scanned,
		Duration: time.Since(start),
	})
	return nil
}

// IsRunning reports whether a run is in progress.
func (idx *Indexer) IsRunning() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.running
}

func (idx *Indexer) tryStart() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.running {
		return false
	}
	idx.running = true
	return true
}

func (idx *Indexer) finish() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.running = false
}
