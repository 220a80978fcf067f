// Package scanner discovers candidate image files under a set of root
// directories and fingerprints them.
//
// A walker goroutine enumerates each root, pruning excluded directories,
// and hands candidates to a bounded pool of hash workers. Finished records
// are streamed on a channel so the consumer can batch them into the
// registry while the walk is still running. Per-file failures (a file that
// vanished, an unreadable file, a hash timeout) are logged and counted but
// never stop the scan.
package scanner
