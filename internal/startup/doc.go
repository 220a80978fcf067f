// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is resolved by [LoadConfig] from, in increasing precedence,
// built-in defaults, an optional YAML file (named by PHOTO_VAULT_CONFIG or the
// --config flag), environment variables, and command-line overrides.
//
//   - DATABASE_DIR: registry directory (default: ./data); the file is photo-vault.db
//   - THUMBNAIL_DIR: thumbnail output directory (default: public/thumbnails)
//   - SEARCH_DIRS: roots to catalog, separated by the OS path list separator
//     (default: ~/Pictures and ~/Documents)
//   - EXCLUDE_DIRS: comma-separated directory names to prune (replaces the defaults)
//   - DETECT_REMOVABLE: also catalog block devices mounted under /media or /mnt (default: true)
//   - BATCH_SIZE: records per registry transaction (default: 500)
//   - SCAN_WORKERS, THUMBNAIL_WORKERS: concurrency (default: derived from CPU count)
//   - HASH_TIMEOUT: per-file fingerprint timeout (default: 2m)
//   - THUMBNAIL_TIMEOUT: per-image thumbnail timeout (default: 1m)
//   - THUMBNAIL_BACKEND: imaging or vips (default: imaging)
//   - LOG_LEVEL: debug, info, warn, error (default: info); DEBUG=true forces debug
//   - LOG_FILE: also append log lines to this file
//   - METRICS_ENABLED: serve /metrics and the operator API (default: false)
//   - METRICS_PORT: operator server port (default: 9090)
//   - WATCH_DEBOUNCE: quiet period before watch mode re-runs (default: 5s)
//
// The YAML file uses the same names in lower case, for example:
//
//	search_dirs: [/srv/photos, ~/Pictures]
//	batch_size: 1000
//	hash_timeout: 5m
//
// # Directory Setup
//
// The registry directory must exist or be creatable and must be writable;
// otherwise [LoadConfig] fails. The thumbnail directory is created the same way.
package startup
