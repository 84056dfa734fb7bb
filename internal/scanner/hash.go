package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrHashTimeout is returned when a file could not be hashed within the
// configured deadline. Slow network mounts and dying disks both show up as
// hash timeouts; the file is skipped rather than stalling the whole scan.
var ErrHashTimeout = errors.New("content hash timed out")

// HashFile computes the SHA-256 hex digest of a file. At most maxBytes
// leading bytes are hashed when maxBytes is positive, and the computation is
// abandoned once timeout elapses. Reads happen on a separate goroutine so a
// blocked filesystem read cannot stall the caller past the deadline.
func HashFile(ctx context.Context, path string, timeout time.Duration, maxBytes int64, blockSize int) (string, error) {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type hashResult struct {
		sum string
		err error
	}
	resultChan := make(chan hashResult, 1)

	go func() {
		sum, err := hashBlocks(ctx, path, maxBytes, blockSize)
		resultChan <- hashResult{sum: sum, err: err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil && ctx.Err() != nil {
			return "", abandonErr(parent, path)
		}
		return res.sum, res.err
	case <-ctx.Done():
		return "", abandonErr(parent, path)
	}
}

// abandonErr classifies an abandoned hash: a canceled caller is reported as
// such, only the per-file deadline counts as a hash timeout.
func abandonErr(parent context.Context, path string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrHashTimeout, path)
}

// hashBlocks reads and hashes the file block by block, giving up between
// blocks once the context is canceled.
func hashBlocks(ctx context.Context, path string, maxBytes int64, blockSize int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if maxBytes > 0 {
		reader = io.LimitReader(f, maxBytes)
	}

	hasher := sha256.New()
	buf := make([]byte, blockSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := reader.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, readErr)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
