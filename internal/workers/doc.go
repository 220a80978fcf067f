/*
Package workers sizes the worker pools used by the scanner and the
thumbnail generator.

Worker counts are derived from runtime.GOMAXPROCS(0) rather than
runtime.NumCPU(), so a container CPU limit is respected (Go 1.19+ sets
GOMAXPROCS from the cgroup quota).

	// Fingerprinting: mostly waiting on disk reads
	scanWorkers := workers.ForIO(16)

	// Thumbnails: decode and resize dominate
	thumbWorkers := workers.ForMixed(8)

An explicit operator setting (SCAN_WORKERS, THUMBNAIL_WORKERS) wins over the
computed value; startup passes it through Resolve:

	n := workers.Resolve(cfg.ScanWorkers, workers.ForIO(16))

Always pass a limit. Hashing large RAW files with 64 readers on a USB disk is
slower than hashing them with four.
*/
package workers
