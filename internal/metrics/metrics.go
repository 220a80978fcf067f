package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scanner metrics
var (
	ScannerFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_scanner_files_total",
			Help: "Total number of candidate files seen by the scanner, by outcome",
		},
		[]string{"outcome"}, // "hashed", "skipped"
	)

	ScannerHashDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_vault_scanner_hash_duration_seconds",
			Help:    "Time spent fingerprinting a single file",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
	)

	ScannerBytesHashed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_vault_scanner_bytes_hashed_total",
			Help: "Total number of bytes streamed through the content hash",
		},
	)

	ScannerWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_scanner_workers",
			Help: "Number of fingerprint workers used by the current scan",
		},
	)
)

// Catalog (batch coordinator) metrics
var (
	CatalogRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_vault_catalog_runs_total",
			Help: "Total number of catalog runs",
		},
	)

	CatalogIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_catalog_running",
			Help: "Whether a catalog run is in progress (1 = running, 0 = idle)",
		},
	)

	CatalogLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_catalog_last_run_duration_seconds",
			Help: "Duration of the last catalog run in seconds",
		},
	)

	CatalogLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_catalog_last_run_timestamp",
			Help: "Timestamp of the last completed catalog run",
		},
	)

	CatalogBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_catalog_batches_total",
			Help: "Total number of registry batches, by status",
		},
		[]string{"status"}, // "success", "error"
	)

	CatalogRecordsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_vault_catalog_records_inserted_total",
			Help: "Total number of records inserted into the registry",
		},
	)

	CatalogRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_vault_catalog_records_dropped_total",
			Help: "Total number of candidate records dropped by path or hash conflict",
		},
	)

	CatalogErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_vault_catalog_errors_total",
			Help: "Total number of catalog runs that ended with an error",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_vault_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_vault_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"outcome"}, // "commit", "rollback"
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_vault_db_rows_affected",
			Help:    "Rows affected per write operation",
			Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photo_vault_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_thumbnail_generations_total",
			Help: "Total number of thumbnail outcomes",
		},
		[]string{"status"}, // "success", "already_present", "error", "missing_source"
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_vault_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail decode, resize and encode duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ThumbnailRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_vault_thumbnail_runs_total",
			Help: "Total number of thumbnail passes",
		},
	)

	ThumbnailIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_thumbnail_running",
			Help: "Whether a thumbnail pass is in progress (1 = running, 0 = idle)",
		},
	)

	ThumbnailLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_thumbnail_last_run_duration_seconds",
			Help: "Duration of the last thumbnail pass in seconds",
		},
	)

	ThumbnailWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_thumbnail_workers",
			Help: "Number of thumbnail workers used by the current pass",
		},
	)
)

// Registry content metrics
var (
	RegistryImagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_registry_images",
			Help: "Number of images in the registry",
		},
	)

	RegistryImagesWithThumbnail = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_registry_images_with_thumbnail",
			Help: "Number of registry images with an attached thumbnail",
		},
	)

	RegistryImagesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_registry_images_pending",
			Help: "Number of registry images still waiting for a thumbnail",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_watcher_events_total",
			Help: "Filesystem events received by the watcher",
		},
		[]string{"op"},
	)

	WatcherDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_watcher_directories",
			Help: "Number of directories currently watched",
		},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_vault_watcher_errors_total",
			Help: "Errors reported by the filesystem watcher",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen by filesystem operations",
		},
		[]string{"op"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_filesystem_retry_attempts_total",
			Help: "Filesystem operation retries after a stale file handle",
		},
		[]string{"op"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"op"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"op"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_memory_paused",
			Help: "Whether thumbnail work is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_vault_memory_gc_pauses_total",
			Help: "Times thumbnail work was paused for memory pressure",
		},
	)
)

// HTTP metrics for the operator server
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_vault_http_requests_total",
			Help: "Operator API requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_vault_http_request_duration_seconds",
			Help:    "Operator API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_vault_http_requests_in_flight",
			Help: "Operator API requests currently being served",
		},
	)
)

// AppInfo exposes build information as labels on a constant gauge.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "photo_vault_app_info",
		Help: "Application build information",
	},
	[]string{"version", "commit", "go_version"},
)
