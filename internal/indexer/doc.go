// Package indexer batches scanned image records into the registry.
//
// The Indexer drains a record stream, flushing every BatchSize records as
// one store transaction. Committed batches stay committed if a later flush
// fails or the run is canceled; a rerun simply skips what is already
// registered, so no checkpoint is kept.
package indexer
