package metrics

import "photo-vault/internal/progress"

// progressObserver implements progress.Observer using the Prometheus
// metrics declared in this package.
type progressObserver struct{}

// NewProgressObserver creates an observer that records catalog and
// thumbnail progress events into the counters declared in metrics.go.
func NewProgressObserver() progress.Observer {
	return &progressObserver{}
}

func (o *progressObserver) Observe(e progress.Event) {
	switch e.Kind {
	case progress.FileHashed:
		ScannerFilesTotal.WithLabelValues("hashed").Inc()
		ScannerBytesHashed.Add(float64(e.Count))
		if e.Duration > 0 {
			ScannerHashDuration.Observe(e.Duration.Seconds())
		}
	case progress.FileSkipped:
		ScannerFilesTotal.WithLabelValues("skipped").Inc()
	case progress.BatchFlushed:
		CatalogBatchesTotal.WithLabelValues("success").Inc()
		CatalogRecordsInserted.Add(float64(e.Count))
	case progress.ThumbnailSucceeded:
		ThumbnailGenerationsTotal.WithLabelValues("success").Inc()
		if e.Duration > 0 {
			ThumbnailGenerationDuration.Observe(e.Duration.Seconds())
		}
	case progress.ThumbnailAlreadyPresent:
		ThumbnailGenerationsTotal.WithLabelValues("already_present").Inc()
	case progress.ThumbnailFailed:
		ThumbnailGenerationsTotal.WithLabelValues("error").Inc()
	case progress.ThumbnailMissingSource:
		ThumbnailGenerationsTotal.WithLabelValues("missing_source").Inc()
	}
}
