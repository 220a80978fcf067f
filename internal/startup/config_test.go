package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// configEnv lists every variable resolve reads so tests start clean.
var configEnv = []string{
	ConfigFileEnv, "DATABASE_DIR", "THUMBNAIL_DIR", "SEARCH_DIRS", "EXCLUDE_DIRS",
	"DETECT_REMOVABLE", "BATCH_SIZE", "SCAN_WORKERS", "THUMBNAIL_WORKERS",
	"HASH_TIMEOUT", "THUMBNAIL_TIMEOUT", "THUMBNAIL_BACKEND", "LOG_LEVEL",
	"LOG_FILE", "METRICS_ENABLED", "METRICS_PORT", "WATCH_DEBOUNCE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestResolveDefaults(t *testing.T) {
	clearEnv(t)
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := resolve(Overrides{})
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "data"), cfg.DatabaseDir)
	assert.Equal(t, filepath.Join(wd, "data", DatabaseFile), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(wd, "public", "thumbnails"), cfg.ThumbnailDir)
	assert.Equal(t, []string{
		filepath.Join(home, "Pictures"),
		filepath.Join(home, "Documents"),
	}, cfg.SearchDirs)
	assert.True(t, cfg.DetectRemovable)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 2*time.Minute, cfg.HashTimeout)
	assert.Equal(t, time.Minute, cfg.ThumbnailTimeout)
	assert.Equal(t, BackendImaging, cfg.ThumbnailBackend)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, 5*time.Second, cfg.WatchDebounce)
	assert.Nil(t, cfg.ExcludeDirSet())
}

func TestResolveEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("DATABASE_DIR", filepath.Join(dir, "db"))
	t.Setenv("THUMBNAIL_DIR", filepath.Join(dir, "thumbs"))
	t.Setenv("SEARCH_DIRS", strings.Join([]string{"/a", " /b ", ""}, string(os.PathListSeparator)))
	t.Setenv("EXCLUDE_DIRS", "build, cache")
	t.Setenv("DETECT_REMOVABLE", "false")
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("SCAN_WORKERS", "3")
	t.Setenv("HASH_TIMEOUT", "30s")
	t.Setenv("THUMBNAIL_BACKEND", "VIPS")
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("WATCH_DEBOUNCE", "1s")

	cfg, err := resolve(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "db", DatabaseFile), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(dir, "thumbs"), cfg.ThumbnailDir)
	assert.Equal(t, []string{"/a", "/b"}, cfg.SearchDirs)
	assert.Equal(t, map[string]bool{"build": true, "cache": true}, cfg.ExcludeDirSet())
	assert.False(t, cfg.DetectRemovable)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 3, cfg.ScanWorkers)
	assert.Equal(t, 0, cfg.ThumbnailWorkers)
	assert.Equal(t, 30*time.Second, cfg.HashTimeout)
	assert.Equal(t, BackendVips, cfg.ThumbnailBackend)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, time.Second, cfg.WatchDebounce)
}

func TestResolveInvalidEnvFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATCH_SIZE", "many")
	t.Setenv("HASH_TIMEOUT", "soon")
	t.Setenv("DETECT_REMOVABLE", "maybe")

	cfg, err := resolve(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 2*time.Minute, cfg.HashTimeout)
	assert.True(t, cfg.DetectRemovable)
}

func TestResolveFileThenEnvThenOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "photo-vault.yaml")
	require.NoError(t, writeFile(path, `
database_dir: /from/file
search_dirs: [/file/photos]
batch_size: 1000
hash_timeout: 5m
thumbnail_backend: vips
metrics_enabled: true
`))

	t.Setenv(ConfigFileEnv, path)
	t.Setenv("BATCH_SIZE", "250")

	cfg, err := resolve(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.DatabaseDir)
	assert.Equal(t, []string{"/file/photos"}, cfg.SearchDirs)
	assert.Equal(t, 250, cfg.BatchSize, "environment beats file")
	assert.Equal(t, 5*time.Minute, cfg.HashTimeout)
	assert.Equal(t, BackendVips, cfg.ThumbnailBackend)
	assert.True(t, cfg.MetricsEnabled)

	cfg, err = resolve(Overrides{
		DatabaseDir: "/from/flag",
		Workers:     2,
		BatchSize:   10,
		SearchDirs:  []string{"/flag/photos"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.DatabaseDir)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 2, cfg.ScanWorkers)
	assert.Equal(t, 2, cfg.ThumbnailWorkers)
	assert.Equal(t, []string{"/flag/photos"}, cfg.SearchDirs)
	assert.False(t, cfg.DetectRemovable, "explicit roots disable removable detection")
}

func TestResolveExplicitConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, writeFile(path, "watch_debounce: 250ms\n"))

	cfg, err := resolve(Overrides{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.WatchDebounce)
}

func TestResolveErrors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, writeFile(unknown, "no_such_key: 1\n"))
	malformed := filepath.Join(dir, "malformed.yaml")
	require.NoError(t, writeFile(malformed, "batch_size: [\n"))
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, writeFile(empty, ""))

	tests := []struct {
		name    string
		env     map[string]string
		o       Overrides
		wantErr string
	}{
		{name: "missing file", o: Overrides{ConfigFile: filepath.Join(dir, "nope.yaml")}, wantErr: "failed to read config file"},
		{name: "unknown key", o: Overrides{ConfigFile: unknown}, wantErr: "failed to parse config file"},
		{name: "malformed", o: Overrides{ConfigFile: malformed}, wantErr: "failed to parse config file"},
		{name: "empty file", o: Overrides{ConfigFile: empty}},
		{name: "bad backend", env: map[string]string{"THUMBNAIL_BACKEND": "magick"}, wantErr: "unknown thumbnail backend"},
		{name: "zero batch", env: map[string]string{"BATCH_SIZE": "0"}, wantErr: "batch size must be positive"},
		{name: "negative workers", env: map[string]string{"SCAN_WORKERS": "-1"}, wantErr: "must not be negative"},
		{name: "negative timeout", env: map[string]string{"HASH_TIMEOUT": "-1s"}, wantErr: "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := resolve(tt.o)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigPreparesDirectories(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := LoadConfig(Overrides{
		DatabaseDir:  filepath.Join(dir, "data"),
		ThumbnailDir: filepath.Join(dir, "thumbs"),
		SearchDirs:   []string{dir},
	})
	require.NoError(t, err)
	assert.DirExists(t, cfg.DatabaseDir)
	assert.DirExists(t, cfg.ThumbnailDir)
	assert.Empty(t, cfg.RemovableDirs)
	assert.Equal(t, []string{dir}, cfg.Roots())
}

func TestLoadConfigDatabaseDirIsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "data")
	require.NoError(t, writeFile(file, "x"))

	_, err := LoadConfig(Overrides{DatabaseDir: file, ThumbnailDir: filepath.Join(dir, "t"), SearchDirs: []string{dir}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database directory error")
}

func TestAbsPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := absPath("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = absPath("~/Pictures")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Pictures"), got)

	got, err = absPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = absPath("~user/x")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "~user", filepath.Base(filepath.Dir(got)))
}

func TestConfigRoots(t *testing.T) {
	cfg := &Config{SearchDirs: []string{"/a"}, RemovableDirs: []string{"/media/usb"}}
	assert.Equal(t, []string{"/a", "/media/usb"}, cfg.Roots())
}
