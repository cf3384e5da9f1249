// SPDX-License-Identifier: MPL-2.0

package install

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// renameRetryInterval is the fixed delay between rename attempts on a
	// destination file that is transiently locked, typically by OS teardown
	// of the just-exited process.
	renameRetryInterval = 250 * time.Millisecond

	// renameMaxAttempts bounds the rename retries per file. Exhausting the
	// budget is fatal for the whole apply.
	renameMaxAttempts = 20
)

// ErrReplaceFailed indicates a destination file could not be replaced
// within the retry budget. The remaining walk is aborted; files already
// replaced stay replaced.
var ErrReplaceFailed = errors.New("file replace exhausted retries")

// renameFile is a test seam over the atomic rename.
//
//nolint:gochecknoglobals // Test seam for os.Rename.
var renameFile = os.Rename

// replaceFile copies src to a uniquely named temporary sibling of dst, then
// atomically renames it onto dst, replacing whatever is there. A directory
// occupying dst is removed first. The rename is retried with a fixed delay
// and bounded attempt count.
func replaceFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source %s: %w", src, err)
	}

	tmp, err := copyToTempSibling(src, dst, info.Mode().Perm())
	if err != nil {
		return err
	}

	// A leftover directory at the destination path blocks the rename on
	// every platform; files are replaced by the rename itself.
	if dstInfo, statErr := os.Stat(dst); statErr == nil && dstInfo.IsDir() {
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("removing directory at %s: %w", dst, rmErr)
		}
	}

	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(renameRetryInterval),
		renameMaxAttempts-1,
	)
	renameErr := backoff.Retry(func() error {
		return renameFile(tmp, dst)
	}, policy)
	if renameErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %s: %v", ErrReplaceFailed, dst, renameErr)
	}

	return nil
}

// copyToTempSibling writes a copy of src next to dst so the final rename
// never crosses a filesystem boundary.
func copyToTempSibling(src, dst string, mode os.FileMode) (_ string, err error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening source %s: %w", src, err)
	}
	defer func() { _ = in.Close() }() // read-only handle

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".lorekeep-tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp sibling for %s: %w", dst, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return "", fmt.Errorf("copying %s: %w", src, err)
	}

	if err = tmp.Chmod(mode); err != nil {
		return "", fmt.Errorf("setting mode on %s: %w", tmpName, err)
	}

	return tmpName, nil
}
