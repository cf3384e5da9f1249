// SPDX-License-Identifier: MPL-2.0

package update

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// downloadChunkBytes is the fixed read size between progress callbacks.
const downloadChunkBytes = 128 << 10

// download streams the candidate's asset into dir and returns the archive
// path. Progress is reported after every chunk; the fraction denominator is
// the candidate's advertised size, falling back to the response-reported
// length, or 0.0 when neither is known.
func (c *Checker) download(ctx context.Context, cand *Candidate, dir string, progress Progress) (_ string, err error) {
	body, contentLen, err := c.feed.DownloadAsset(ctx, cand.AssetURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }() // read-only HTTP response body

	total := cand.AssetSize
	if total <= 0 && contentLen > 0 {
		total = contentLen
	}

	archivePath := filepath.Join(dir, cand.AssetName)
	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating archive file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	msg := fmt.Sprintf("Downloading %s", cand.AssetName)
	var written int64
	buf := make([]byte, downloadChunkBytes)

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return "", fmt.Errorf("writing archive: %w", writeErr)
			}
			written += int64(n)
			notify(progress, msg, downloadFraction(written, total))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("downloading %s: %w", cand.AssetName, readErr)
		}
	}

	// A short read against an advertised size means a truncated transfer
	// that the HTTP layer did not surface.
	if total > 0 && written < total {
		return "", fmt.Errorf("downloading %s: got %d of %d bytes", cand.AssetName, written, total)
	}

	return archivePath, nil
}

// downloadFraction computes the progress fraction, clamped to [0, 1].
// Unknown totals report 0.0 throughout.
func downloadFraction(written, total int64) float64 {
	if total <= 0 {
		return 0.0
	}
	f := float64(written) / float64(total)
	if f > 1 {
		f = 1
	}
	return f
}
