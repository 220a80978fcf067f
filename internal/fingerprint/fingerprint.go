package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"photo-vault/internal/filesystem"
)

// ChunkSize is the read size used while streaming file contents.
const ChunkSize = 8 * 1024

// ErrTimeout is returned by FileWithTimeout when hashing does not finish
// before the deadline.
var ErrTimeout = errors.New("fingerprint timed out")

// ctxReader stops a copy between chunks once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Reader returns the hex-encoded SHA-256 of everything read from r.
func Reader(ctx context.Context, r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)

	if _, err := io.CopyBuffer(h, &ctxReader{ctx: ctx, r: r}, buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the hex-encoded SHA-256 of the file at path.
func File(ctx context.Context, path string) (string, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := Reader(ctx, f)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return sum, nil
}

// FileWithTimeout is File bounded by timeout. A read that hangs (stale
// network mount, failing USB disk) returns ErrTimeout once the deadline
// passes; the abandoned read closes its file when the syscall returns.
// A non-positive timeout means no bound beyond ctx.
func FileWithTimeout(ctx context.Context, path string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return File(ctx, path)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		sum string
		err error
	}
	done := make(chan result, 1)

	go func() {
		sum, err := File(ctx, path)
		done <- result{sum: sum, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %v: %s", ErrTimeout, timeout, path)
		}
		return r.sum, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %v: %s", ErrTimeout, timeout, path)
		}
		return "", ctx.Err()
	}
}
