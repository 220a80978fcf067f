// Package memory controls Go's heap limit in containers and applies
// backpressure to thumbnail generation.
//
// Decoding a large photo can allocate hundreds of megabytes, and several
// workers decoding at once can push a container past its memory limit.
// [ConfigureFromEnv] sets GOMEMLIMIT from the container limit, and a
// [Monitor] pauses dispatch of new thumbnail work while the heap is above
// the critical water mark.
//
// # Environment Variables
//
//   - GOMEMLIMIT: Standard Go variable; takes precedence when set.
//   - MEMORY_LIMIT: Container memory limit in bytes, typically from the
//     Kubernetes Downward API (resourceFieldRef: limits.memory).
//   - MEMORY_RATIO: Fraction of MEMORY_LIMIT given to the Go heap
//     (default 0.85). Lower it when libvips is the thumbnail backend, since
//     its allocations are outside the Go heap.
//
// # Usage
//
//	memory.ConfigureFromEnv()
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//	gen := thumbnail.NewGenerator(db, thumbnail.Config{Gate: mon})
package memory
