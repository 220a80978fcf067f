package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup.
func InitializeMetrics() {
	for _, outcome := range []string{"hashed", "skipped"} {
		ScannerFilesTotal.WithLabelValues(outcome)
	}

	for _, status := range []string{"success", "error"} {
		CatalogBatchesTotal.WithLabelValues(status)
	}

	for _, status := range []string{"success", "already_present", "error", "missing_source"} {
		ThumbnailGenerationsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"initialize_schema", "upsert_batch", "records_missing_thumbnail",
		"attach_thumbnail", "get_image", "get_image_by_hash", "count_images"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(op)
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
