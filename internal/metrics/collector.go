package metrics

import (
	"context"
	"os"
	"time"

	"photo-vault/internal/logging"
)

// StatsProvider reports registry totals for the collector.
type StatsProvider interface {
	RegistryStats(ctx context.Context) (Stats, error)
}

// connectionReporter is implemented by providers that publish their own
// connection pool gauges.
type connectionReporter interface {
	UpdateDBMetrics()
}

// Stats holds registry totals.
type Stats struct {
	TotalImages   int64 `json:"totalImages"`
	WithThumbnail int64 `json:"withThumbnail"`
	PendingThumbs int64 `json:"pendingThumbnails"`
}

// Collector periodically collects and updates registry gauges.
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector. dbPath may be empty, in
// which case database file sizes are not reported.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectDBSizes()

	if c.statsProvider == nil {
		return
	}
	if r, ok := c.statsProvider.(connectionReporter); ok {
		r.UpdateDBMetrics()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.statsProvider.RegistryStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	RegistryImagesTotal.Set(float64(stats.TotalImages))
	RegistryImagesWithThumbnail.Set(float64(stats.WithThumbnail))
	RegistryImagesPending.Set(float64(stats.PendingThumbs))

	logging.Debug("Metrics collected: images=%d, thumbnails=%d, pending=%d",
		stats.TotalImages, stats.WithThumbnail, stats.PendingThumbs)
}

func (c *Collector) collectDBSizes() {
	if c.dbPath == "" {
		return
	}
	for file, path := range map[string]string{
		"main": c.dbPath,
		"wal":  c.dbPath + "-wal",
		"shm":  c.dbPath + "-shm",
	} {
		if info, err := os.Stat(path); err == nil {
			DBSizeBytes.WithLabelValues(file).Set(float64(info.Size()))
		} else {
			DBSizeBytes.WithLabelValues(file).Set(0)
		}
	}
}
