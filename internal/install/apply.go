// SPDX-License-Identifier: MPL-2.0

package install

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultWaitTimeout caps how long the installer waits for the launching
// process to exit before abandoning the update.
const DefaultWaitTimeout = 30 * time.Second

// ErrBadInvocation indicates the source or target directory does not exist.
// Apply refuses to touch the filesystem on a misconfigured invocation.
var ErrBadInvocation = errors.New("invalid installer invocation")

// Options is the installer's one-shot work order, parsed from the command
// line built by update.Launch.
type Options struct {
	Source        string        // Staged payload root (must exist)
	Target        string        // Live install root (must exist)
	Preserve      []string      // Relative prefixes to leave untouched
	WaitPID       int           // Process to wait for; 0 disables the wait
	WaitTimeout   time.Duration // Wait budget; 0 means DefaultWaitTimeout
	RestartTarget string        // Executable to relaunch on success
	CleanupRoots  []string      // Directories to delete after success
}

// Apply performs the tree replacement: wait for the launcher to exit, walk
// the staged payload depth-first onto the target, delete cleanup roots, and
// relaunch the application.
//
// Failure semantics: validation and wait failures happen before any copy;
// a file that cannot be replaced within the retry budget aborts the
// remaining walk and surfaces as an error, while files already replaced
// stay replaced — a half-applied update is reported, never rolled back and
// never silently skipped. Cleanup and relaunch failures are logged but do
// not change the outcome.
func Apply(opts Options, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	src, err := requireDir(opts.Source, "source")
	if err != nil {
		return err
	}
	dst, err := requireDir(opts.Target, "target")
	if err != nil {
		return err
	}

	preserve := NewPreserveSet(opts.Preserve)

	timeout := opts.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if opts.WaitPID > 0 {
		logger.Info("waiting for launcher to exit", "pid", opts.WaitPID, "timeout", timeout)
		if err := waitForExit(opts.WaitPID, timeout); err != nil {
			return err
		}
	}

	logger.Info("replacing install tree", "source", src, "target", dst)
	if err := replaceTree(src, dst, preserve, logger); err != nil {
		return err
	}

	for _, root := range opts.CleanupRoots {
		if err := os.RemoveAll(root); err != nil {
			logger.Warn("cleanup failed", "root", root, "err", err)
		}
	}

	if opts.RestartTarget != "" {
		if err := restart(opts.RestartTarget, dst); err != nil {
			// Files are already in place; a failed relaunch does not make
			// the update a failure.
			logger.Warn("relaunch failed", "target", opts.RestartTarget, "err", err)
		}
	}

	return nil
}

// requireDir resolves path to an absolute existing directory.
func requireDir(path, role string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: %s directory not set", ErrBadInvocation, role)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: resolving %s %s: %v", ErrBadInvocation, role, path, err)
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s directory %s does not exist", ErrBadInvocation, role, abs)
	}

	return abs, nil
}

// replaceTree walks src depth-first and mirrors it onto dst, honoring the
// preserve set. Copies are strictly sequential; parallel workers would only
// complicate the locked-file retry semantics.
func replaceTree(src, dst string, preserve *PreserveSet, logger *log.Logger) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walking %s: %w", path, walkErr)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}

		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if preserve.Matches(rel) {
				// Preserved directory: not created, not recursed into, the
				// existing destination content left untouched.
				logger.Debug("preserving directory", "path", rel)
				return fs.SkipDir
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
			return nil
		}

		if preserve.Matches(rel) {
			logger.Debug("preserving file", "path", rel)
			return nil
		}

		if err := replaceFile(path, target); err != nil {
			return err
		}
		logger.Debug("replaced", "path", rel)
		return nil
	})
}
