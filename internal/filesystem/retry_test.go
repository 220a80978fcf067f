package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"photo-vault/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func staleErr(path string) error {
	return &fs.PathError{Op: "open", Path: path, Err: syscall.ESTALE}
}

func TestIsStale(t *testing.T) {
	assert.True(t, IsStale(syscall.ESTALE))
	assert.True(t, IsStale(staleErr("/x")))
	assert.False(t, IsStale(nil))
	assert.False(t, IsStale(fs.ErrNotExist))
	assert.False(t, IsStale(&fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}))
}

func TestStatAndOpenWithRetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	info, err := StatWithRetry(path, DefaultRetryConfig())
	require.NoError(t, err)
	assert.EqualValues(t, 4, info.Size())

	f, err := OpenWithRetry(path, DefaultRetryConfig())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = StatWithRetry(path+".missing", DefaultRetryConfig())
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = OpenWithRetry(path+".missing", DefaultRetryConfig())
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWithRetryRecoversFromStale(t *testing.T) {
	before := testutil.ToFloat64(metrics.FilesystemRetrySuccess.WithLabelValues("open"))

	calls := 0
	v, err := withRetry("open", "/nfs/a.jpg", fastConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, staleErr("/nfs/a.jpg")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FilesystemRetrySuccess.WithLabelValues("open")))
}

func TestWithRetryGivesUp(t *testing.T) {
	before := testutil.ToFloat64(metrics.FilesystemRetryFailures.WithLabelValues("stat"))

	calls := 0
	_, err := withRetry("stat", "/nfs/a.jpg", fastConfig(), func() (int, error) {
		calls++
		return 0, staleErr("/nfs/a.jpg")
	})
	require.Error(t, err)
	assert.True(t, IsStale(err))
	assert.Equal(t, 4, calls, "initial attempt plus MaxRetries")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FilesystemRetryFailures.WithLabelValues("stat")))
}

func TestWithRetryOtherErrorsAreImmediate(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := withRetry("open", "/a", fastConfig(), func() (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetryZeroRetries(t *testing.T) {
	calls := 0
	_, err := withRetry("open", "/a", RetryConfig{}, func() (int, error) {
		calls++
		return 0, staleErr("/a")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
