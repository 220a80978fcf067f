// Package metrics provides Prometheus instrumentation for photo-vault.
//
// All metrics are prefixed with "photo_vault_" and registered on the default
// registry through promauto. They are only exported when the metrics server
// is enabled; recording into them is always safe.
//
// # Metric Categories
//
// ## Scanner
//   - ScannerFilesTotal: candidates by outcome (hashed/skipped)
//   - ScannerHashDuration: fingerprint duration histogram
//   - ScannerBytesHashed: bytes streamed through the hash
//
// ## Catalog batches
//   - CatalogRunsTotal, CatalogLastRunDuration, CatalogLastRunTimestamp
//   - CatalogBatchesTotal, CatalogRecordsInserted, CatalogRecordsDropped
//
// ## Registry database
//   - DBQueryTotal, DBQueryDuration by operation
//   - DBTransactionDuration by outcome (commit/rollback)
//   - DBConnectionsOpen, DBSizeBytes
//
// ## Thumbnails
//   - ThumbnailGenerationsTotal by status
//   - ThumbnailGenerationDuration
//   - ThumbnailRunsTotal, ThumbnailLastRunDuration
//
// ## Registry contents (updated by Collector)
//   - RegistryImagesTotal, RegistryImagesWithThumbnail, RegistryImagesPending
//
// # Usage
//
//	metrics.InitializeMetrics()
//	observer := metrics.NewProgressObserver()
//	collector := metrics.NewCollector(db, dbPath, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// Useful queries:
//
//	rate(photo_vault_catalog_records_inserted_total[5m])
//	photo_vault_registry_images_pending
//	sum(rate(photo_vault_thumbnail_generations_total{status="error"}[1h]))
package metrics
