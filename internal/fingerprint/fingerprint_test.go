package fingerprint

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestFileKnownDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	got, err := File(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got)
}

func TestFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got, err := File(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(nil), got)
	assert.Len(t, got, 64)
}

func TestFileLargerThanChunk(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize) // 16 chunks
	data = append(data, 'x')                                    // uneven tail
	path := filepath.Join(t.TempDir(), "big.dng")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := File(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(data), got)
}

func TestFileIdenticalContentSameHash(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "nested", "b.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0o755))
	require.NoError(t, os.WriteFile(a, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same bytes"), 0o644))

	ha, err := File(context.Background(), a)
	require.NoError(t, err)
	hb, err := File(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestFileMissing(t *testing.T) {
	got, err := File(context.Background(), filepath.Join(t.TempDir(), "vanished.jpg"))
	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileDirectory(t *testing.T) {
	got, err := File(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Empty(t, got)
}

func TestReaderCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := Reader(ctx, strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

// errReader fails after returning some bytes.
type errReader struct{ sent bool }

func (e *errReader) Read(p []byte) (int, error) {
	if !e.sent {
		e.sent = true
		return copy(p, "partial"), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestReaderFailureReturnsNoPartialHash(t *testing.T) {
	got, err := Reader(context.Background(), &errReader{})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, got)
}

func TestFileWithTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))

	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"bounded", time.Second},
		{"unbounded", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FileWithTimeout(context.Background(), path, tt.timeout)
			require.NoError(t, err)
			assert.Equal(t, sha256Hex([]byte("png bytes")), got)
		})
	}
}

func TestFileWithTimeoutExpiredDeadline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slow.jpg")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, 4*ChunkSize), 0o644))

	got, err := FileWithTimeout(context.Background(), path, time.Nanosecond)
	if err == nil {
		// The read can legitimately win the race on a fast disk.
		assert.Len(t, got, 64)
		return
	}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, got)
}

func TestFileWithTimeoutParentCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FileWithTimeout(ctx, path, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}
