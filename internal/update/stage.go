// SPDX-License-Identifier: MPL-2.0

package update

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxMemberBytes is the upper bound on a single extracted archive member
// (1 GB). Prevents decompression bombs from filling the disk.
const maxMemberBytes = 1 << 30

// ErrArchiveCorrupt indicates the downloaded archive could not be read or
// contained unsafe member paths.
var ErrArchiveCorrupt = errors.New("archive corrupt")

// StagingArea is the temporary, isolated extraction of a downloaded release
// payload. Root owns ArchivePath and PayloadRoot; Cleanup removes all three
// together.
type StagingArea struct {
	Root        string // Private temp directory owning everything below
	ArchivePath string // Downloaded archive inside Root
	PayloadRoot string // Collapsed payload root (see collapsePayloadRoot)
}

// Cleanup removes the staging area recursively. Best-effort: the area lives
// under the OS temp directory and will be reaped eventually regardless.
func (s *StagingArea) Cleanup() error {
	return os.RemoveAll(s.Root)
}

// Stage downloads the candidate's archive into a fresh private temp
// directory and extracts it into a payload subdirectory, reporting progress
// through cb. On any failure the partially built staging area is removed
// before the error is returned — partial extraction is never success.
func (c *Checker) Stage(ctx context.Context, cand *Candidate, cb Progress) (_ *StagingArea, err error) {
	root, err := os.MkdirTemp("", "lorekeep-update-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(root)
		}
	}()

	archivePath, err := c.download(ctx, cand, root, cb)
	if err != nil {
		return nil, err
	}

	payloadDir := filepath.Join(root, "payload")
	if err = os.Mkdir(payloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating payload directory: %w", err)
	}

	if err = extractArchive(archivePath, payloadDir, cb); err != nil {
		return nil, err
	}

	payloadRoot, err := collapsePayloadRoot(payloadDir)
	if err != nil {
		return nil, err
	}

	return &StagingArea{
		Root:        root,
		ArchivePath: archivePath,
		PayloadRoot: payloadRoot,
	}, nil
}

// extractArchive dispatches on the archive filename extension.
func extractArchive(archivePath, dest string, cb Progress) error {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(archivePath, dest, cb)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTarGz(archivePath, dest, cb)
	default:
		return fmt.Errorf("%w: unrecognized archive type %s", ErrArchiveCorrupt, filepath.Base(archivePath))
	}
}

// extractZip extracts every member of a zip archive into dest, reporting
// (i/total) progress per member.
func extractZip(archivePath, dest string, cb Progress) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	defer func() { _ = r.Close() }() // read-only handle

	total := len(r.File)
	for i, f := range r.File {
		notify(cb, fmt.Sprintf("Extracting (%d/%d)", i+1, total), extractFraction(i+1, total))

		target, pathErr := safeJoin(dest, f.Name)
		if pathErr != nil {
			return pathErr
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", f.Name, err)
			}
			continue
		}

		if err := extractZipMember(f, target); err != nil {
			return err
		}
	}

	return nil
}

// extractZipMember writes one regular zip member to target.
func extractZipMember(f *zip.File, target string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: opening member %s: %v", ErrArchiveCorrupt, f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o200)
	if err != nil {
		return fmt.Errorf("creating %s: %w", f.Name, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := io.Copy(out, io.LimitReader(rc, maxMemberBytes)); err != nil {
		return fmt.Errorf("%w: extracting %s: %v", ErrArchiveCorrupt, f.Name, err)
	}

	return nil
}

// extractTarGz extracts every member of a tar.gz archive into dest. A tar
// stream does not carry its member count, but the archive is a local file,
// so a cheap header-counting pre-pass buys per-member (i/total) progress to
// match the zip path.
func extractTarGz(archivePath, dest string, cb Progress) error {
	total, err := countTarMembers(archivePath)
	if err != nil {
		return err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only handle

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for i := 1; ; i++ {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}
		if nextErr != nil {
			return fmt.Errorf("%w: %v", ErrArchiveCorrupt, nextErr)
		}

		notify(cb, fmt.Sprintf("Extracting (%d/%d)", i, total), extractFraction(i, total))

		target, pathErr := safeJoin(dest, hdr.Name)
		if pathErr != nil {
			return pathErr
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := extractTarMember(tr, hdr, target); err != nil {
				return err
			}
		default:
			// Symlinks and other special members are not part of release
			// payloads; skipping keeps extraction simple and safe.
			continue
		}
	}
}

// countTarMembers walks the archive's headers without extracting anything
// and returns the member count. Corruption found here surfaces the same
// way it would during extraction.
func countTarMembers(archivePath string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only handle

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	count := 0
	for {
		_, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return count, nil
		}
		if nextErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrArchiveCorrupt, nextErr)
		}
		count++
	}
}

// extractTarMember writes one regular tar member to target.
func extractTarMember(tr *tar.Reader, hdr *tar.Header, target string) (err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", hdr.Name, err)
	}

	mode := os.FileMode(hdr.Mode).Perm()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
	if err != nil {
		return fmt.Errorf("creating %s: %w", hdr.Name, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := io.Copy(out, io.LimitReader(tr, maxMemberBytes)); err != nil {
		return fmt.Errorf("%w: extracting %s: %v", ErrArchiveCorrupt, hdr.Name, err)
	}

	return nil
}

// safeJoin joins a relative archive member name onto dest, rejecting
// absolute paths and ".." traversal out of the extraction root.
func safeJoin(dest, name string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: unsafe member path %q", ErrArchiveCorrupt, name)
	}
	return filepath.Join(dest, rel), nil
}

// extractFraction computes per-member extraction progress.
func extractFraction(done, total int) float64 {
	if total <= 0 {
		return 0.0
	}
	return float64(done) / float64(total)
}

// collapsePayloadRoot applies the single-root heuristic: archives are often
// wrapped in one top-level folder named after the release; when the payload
// directory contains exactly one entry and it is a non-metadata directory,
// the payload root moves inside it. Anything else leaves the root as-is.
// This is a pragmatic guess, not a guarantee.
func collapsePayloadRoot(payloadDir string) (string, error) {
	entries, err := os.ReadDir(payloadDir)
	if err != nil {
		return "", fmt.Errorf("reading payload directory: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			return payloadDir, nil
		}
		if isMetadataName(e.Name()) {
			continue
		}
		dirs = append(dirs, e.Name())
	}

	if len(dirs) == 1 {
		return filepath.Join(payloadDir, dirs[0]), nil
	}
	return payloadDir, nil
}

// isMetadataName reports archive-tool metadata directories that should not
// count as a payload root (macOS resource forks and the like).
func isMetadataName(name string) bool {
	return name == "__MACOSX" || name == ".DS_Store"
}
