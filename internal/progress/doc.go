// Package progress defines the structured events the catalog and thumbnail
// passes report while they run.
//
// Core packages never format progress for humans. They call an Observer,
// and callers decide whether events become log lines, Prometheus counters,
// or the JSON served from /api/progress. The metrics package provides the
// Prometheus implementation so that this package stays dependency free.
package progress
