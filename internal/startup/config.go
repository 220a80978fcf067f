package startup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"photo-vault/internal/logging"

	"gopkg.in/yaml.v3"
)

// DatabaseFile is the registry file name inside DatabaseDir.
const DatabaseFile = "photo-vault.db"

// ConfigFileEnv names the environment variable holding a YAML config path.
const ConfigFileEnv = "PHOTO_VAULT_CONFIG"

// Thumbnail backends.
const (
	BackendImaging = "imaging"
	BackendVips    = "vips"
)

// Config holds all application configuration.
//
// Values are resolved in order: defaults, the YAML file, environment
// variables, then command-line overrides. Later sources win.
type Config struct {
	DatabaseDir      string        `yaml:"database_dir"`
	ThumbnailDir     string        `yaml:"thumbnail_dir"`
	SearchDirs       []string      `yaml:"search_dirs"`
	ExcludeDirs      []string      `yaml:"exclude_dirs"`
	DetectRemovable  bool          `yaml:"detect_removable"`
	BatchSize        int           `yaml:"batch_size"`
	ScanWorkers      int           `yaml:"scan_workers"`
	ThumbnailWorkers int           `yaml:"thumbnail_workers"`
	HashTimeout      time.Duration `yaml:"hash_timeout"`
	ThumbnailTimeout time.Duration `yaml:"thumbnail_timeout"`
	ThumbnailBackend string        `yaml:"thumbnail_backend"`
	LogLevel         string        `yaml:"log_level"`
	LogFile          string        `yaml:"log_file"`
	MetricsEnabled   bool          `yaml:"metrics_enabled"`
	MetricsPort      string        `yaml:"metrics_port"`
	WatchDebounce    time.Duration `yaml:"watch_debounce"`

	// Derived
	DatabasePath  string   `yaml:"-"`
	RemovableDirs []string `yaml:"-"`
}

// Overrides carries command-line values. Zero values leave the
// configuration untouched.
type Overrides struct {
	ConfigFile   string
	DatabaseDir  string
	ThumbnailDir string
	Workers      int
	BatchSize    int
	SearchDirs   []string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DatabaseDir:      "./data",
		ThumbnailDir:     "public/thumbnails",
		SearchDirs:       []string{"~/Pictures", "~/Documents"},
		DetectRemovable:  true,
		BatchSize:        500,
		HashTimeout:      2 * time.Minute,
		ThumbnailTimeout: time.Minute,
		ThumbnailBackend: BackendImaging,
		MetricsPort:      "9090",
		WatchDebounce:    5 * time.Second,
	}
}

// Roots returns the search directories followed by any detected removable
// mounts.
func (c *Config) Roots() []string {
	roots := make([]string, 0, len(c.SearchDirs)+len(c.RemovableDirs))
	roots = append(roots, c.SearchDirs...)
	return append(roots, c.RemovableDirs...)
}

// ExcludeDirSet returns ExcludeDirs as a set, or nil when none are
// configured so callers fall back to their own defaults.
func (c *Config) ExcludeDirSet() map[string]bool {
	if len(c.ExcludeDirs) == 0 {
		return nil
	}
	set := make(map[string]bool, len(c.ExcludeDirs))
	for _, d := range c.ExcludeDirs {
		set[d] = true
	}
	return set
}

// LoadConfig resolves the configuration and prepares the registry and
// thumbnail directories. A registry directory that cannot be created or
// written is an error.
func LoadConfig(o Overrides) (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg, err := resolve(o)
	if err != nil {
		return nil, err
	}

	if cfg.DetectRemovable {
		mounts, err := RemovableMounts()
		if err != nil {
			logging.Debug("  Removable mount detection failed: %v", err)
		} else if len(mounts) > 0 {
			logging.Info("  Detected removable mounts: %v", mounts)
			cfg.RemovableDirs = mounts
		}
	}

	cfg.log()

	logSection("DIRECTORY SETUP")

	if err := ensureDirectory(cfg.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(cfg.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if err := ensureDirectory(cfg.ThumbnailDir, "thumbnail"); err != nil {
		return nil, fmt.Errorf("thumbnail directory error: %w", err)
	}
	if err := testWriteAccess(cfg.ThumbnailDir); err != nil {
		return nil, fmt.Errorf("thumbnail directory is not writable: %w", err)
	}
	logging.Info("  [OK] Thumbnail directory is writable")

	return cfg, nil
}

// resolve layers every configuration source without touching the
// filesystem beyond reading the YAML file.
func resolve(o Overrides) (*Config, error) {
	cfg := DefaultConfig()

	path := o.ConfigFile
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
		logging.Info("  Config file:         %s", path)
	}

	applyEnv(cfg)
	applyOverrides(cfg, o)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.normalizePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return decodeYAML(bytes.NewReader(data), cfg)
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseDir = getEnv("DATABASE_DIR", cfg.DatabaseDir)
	cfg.ThumbnailDir = getEnv("THUMBNAIL_DIR", cfg.ThumbnailDir)
	cfg.SearchDirs = getEnvList("SEARCH_DIRS", string(os.PathListSeparator), cfg.SearchDirs)
	cfg.ExcludeDirs = getEnvList("EXCLUDE_DIRS", ",", cfg.ExcludeDirs)
	cfg.DetectRemovable = getEnvBool("DETECT_REMOVABLE", cfg.DetectRemovable)
	cfg.BatchSize = getEnvInt("BATCH_SIZE", cfg.BatchSize)
	cfg.ScanWorkers = getEnvInt("SCAN_WORKERS", cfg.ScanWorkers)
	cfg.ThumbnailWorkers = getEnvInt("THUMBNAIL_WORKERS", cfg.ThumbnailWorkers)
	cfg.HashTimeout = getEnvDuration("HASH_TIMEOUT", cfg.HashTimeout)
	cfg.ThumbnailTimeout = getEnvDuration("THUMBNAIL_TIMEOUT", cfg.ThumbnailTimeout)
	cfg.ThumbnailBackend = strings.ToLower(getEnv("THUMBNAIL_BACKEND", cfg.ThumbnailBackend))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsPort = getEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.WatchDebounce = getEnvDuration("WATCH_DEBOUNCE", cfg.WatchDebounce)
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.DatabaseDir != "" {
		cfg.DatabaseDir = o.DatabaseDir
	}
	if o.ThumbnailDir != "" {
		cfg.ThumbnailDir = o.ThumbnailDir
	}
	if o.Workers > 0 {
		cfg.ScanWorkers = o.Workers
		cfg.ThumbnailWorkers = o.Workers
	}
	if o.BatchSize > 0 {
		cfg.BatchSize = o.BatchSize
	}
	if len(o.SearchDirs) > 0 {
		cfg.SearchDirs = o.SearchDirs
		cfg.DetectRemovable = false
	}
}

func (c *Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.ScanWorkers < 0 || c.ThumbnailWorkers < 0 {
		return fmt.Errorf("worker counts must not be negative")
	}
	if c.HashTimeout < 0 || c.ThumbnailTimeout < 0 || c.WatchDebounce < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	switch c.ThumbnailBackend {
	case BackendImaging, BackendVips:
	default:
		return fmt.Errorf("unknown thumbnail backend %q (want %s or %s)",
			c.ThumbnailBackend, BackendImaging, BackendVips)
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.DatabaseDir, err = absPath(c.DatabaseDir); err != nil {
		return fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	if c.ThumbnailDir, err = absPath(c.ThumbnailDir); err != nil {
		return fmt.Errorf("failed to resolve thumbnail directory path: %w", err)
	}
	if c.LogFile != "" {
		if c.LogFile, err = absPath(c.LogFile); err != nil {
			return fmt.Errorf("failed to resolve log file path: %w", err)
		}
	}

	dirs := make([]string, 0, len(c.SearchDirs))
	for _, d := range c.SearchDirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		abs, err := absPath(d)
		if err != nil {
			logging.Warn("  Ignoring search directory %s: %v", d, err)
			continue
		}
		dirs = append(dirs, abs)
	}
	c.SearchDirs = dirs
	c.DatabasePath = filepath.Join(c.DatabaseDir, DatabaseFile)
	return nil
}

func (c *Config) log() {
	logging.Info("  DATABASE_DIR:        %s", c.DatabaseDir)
	logging.Info("  THUMBNAIL_DIR:       %s", c.ThumbnailDir)
	logging.Info("  SEARCH_DIRS:         %v", c.SearchDirs)
	if len(c.ExcludeDirs) > 0 {
		logging.Info("  EXCLUDE_DIRS:        %v", c.ExcludeDirs)
	} else {
		logging.Info("  EXCLUDE_DIRS:        (defaults)")
	}
	logging.Info("  DETECT_REMOVABLE:    %v", c.DetectRemovable)
	logging.Info("  BATCH_SIZE:          %d", c.BatchSize)
	logging.Info("  SCAN_WORKERS:        %s", workersString(c.ScanWorkers))
	logging.Info("  THUMBNAIL_WORKERS:   %s", workersString(c.ThumbnailWorkers))
	logging.Info("  HASH_TIMEOUT:        %v", c.HashTimeout)
	logging.Info("  THUMBNAIL_TIMEOUT:   %v", c.ThumbnailTimeout)
	logging.Info("  THUMBNAIL_BACKEND:   %s", c.ThumbnailBackend)
	logging.Info("  METRICS:             %s", enabledString(c.MetricsEnabled))
	if c.MetricsEnabled {
		logging.Info("  METRICS_PORT:        %s", c.MetricsPort)
	}
	logging.Info("  WATCH_DEBOUNCE:      %v", c.WatchDebounce)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	if c.LogFile != "" {
		logging.Info("  LOG_FILE:            %s", c.LogFile)
	}
}

func workersString(n int) string {
	if n <= 0 {
		return "auto"
	}
	return strconv.Itoa(n)
}

// absPath expands a leading ~ and makes the path absolute.
func absPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvList(key, sep string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
