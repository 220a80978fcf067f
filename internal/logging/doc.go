// Package logging provides the leveled logger used across photo-vault.
//
// It supports the following log levels:
//   - DEBUG: per-file detail (skipped candidates, cache hits)
//   - INFO: run progress and summaries
//   - WARN: per-item failures that were skipped
//   - ERROR: failures that abort a pass
//   - FATAL: startup failures that terminate the process
//
// The level comes from DEBUG or LOG_LEVEL. Lines always go to stderr and can
// additionally be appended to a file with SetOutputFile.
package logging
