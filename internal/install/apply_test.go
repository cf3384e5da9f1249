// SPDX-License-Identifier: MPL-2.0

package install

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// writeTree materializes files (path -> content) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
	}
}

func readTreeFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("reading %s: %v", rel, err)
	}
	return string(data)
}

func discardLogger() *log.Logger { return log.New(io.Discard) }

// TestApplyReplacesTree is the canonical replacement scenario: the payload
// overwrites everything except the preserved campaign data, and payload
// files absent in the preserve set land even in fresh directories.
func TestApplyReplacesTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeTree(t, src, map[string]string{
		"lorekeep":             "new-binary",
		"Campaigns/starter.db": "template",
		"docs/CHANGES.txt":     "changelog",
	})
	writeTree(t, dst, map[string]string{
		"lorekeep":           "old-binary",
		"Campaigns/mine.db":  "my campaign",
		"obsolete/junk.txt":  "stale",
		"Campaigns2/next.db": "other",
	})

	err := Apply(Options{
		Source:   src,
		Target:   dst,
		Preserve: []string{"Campaigns"},
	}, discardLogger())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := readTreeFile(t, dst, "lorekeep"); got != "new-binary" {
		t.Errorf("lorekeep = %q, want new-binary", got)
	}
	if got := readTreeFile(t, dst, "docs/CHANGES.txt"); got != "changelog" {
		t.Errorf("CHANGES.txt = %q, want changelog", got)
	}

	// Preserved content untouched, including the payload's own copy.
	if got := readTreeFile(t, dst, "Campaigns/mine.db"); got != "my campaign" {
		t.Errorf("mine.db = %q, preserved content was modified", got)
	}
	if _, err := os.Stat(filepath.Join(dst, "Campaigns", "starter.db")); !os.IsNotExist(err) {
		t.Error("payload file landed inside a preserved directory")
	}

	// Replacement is additive: files absent from the payload survive.
	if got := readTreeFile(t, dst, "obsolete/junk.txt"); got != "stale" {
		t.Errorf("junk.txt = %q, want untouched stale file", got)
	}
	if got := readTreeFile(t, dst, "Campaigns2/next.db"); got != "other" {
		t.Errorf("Campaigns2 was caught by the Campaigns preserve entry")
	}
}

func TestApplyReplacesDirectoryWithFile(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeTree(t, src, map[string]string{"plugins": "now a file"})
	writeTree(t, dst, map[string]string{"plugins/old.so": "so"})

	if err := Apply(Options{Source: src, Target: dst}, discardLogger()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := readTreeFile(t, dst, "plugins"); got != "now a file" {
		t.Errorf("plugins = %q, want file replacing old directory", got)
	}
}

func TestApplyBadInvocation(t *testing.T) {
	existing := t.TempDir()
	missing := filepath.Join(t.TempDir(), "nope")

	tests := []struct {
		name string
		opts Options
	}{
		{name: "empty source", opts: Options{Target: existing}},
		{name: "empty target", opts: Options{Source: existing}},
		{name: "missing source", opts: Options{Source: missing, Target: existing}},
		{name: "missing target", opts: Options{Source: existing, Target: missing}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Apply(tt.opts, discardLogger()); !errors.Is(err, ErrBadInvocation) {
				t.Errorf("Apply error = %v, want ErrBadInvocation", err)
			}
		})
	}
}

func TestApplyWaitTimeoutAborts(t *testing.T) {
	stubPID(t, func(int) bool { return true })

	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"lorekeep": "new"})
	writeTree(t, dst, map[string]string{"lorekeep": "old"})

	err := Apply(Options{
		Source:      src,
		Target:      dst,
		WaitPID:     os.Getpid(),
		WaitTimeout: 50 * time.Millisecond,
	}, discardLogger())
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("Apply error = %v, want ErrWaitTimeout", err)
	}
	if got := readTreeFile(t, dst, "lorekeep"); got != "old" {
		t.Errorf("lorekeep = %q, files were copied despite wait timeout", got)
	}
}

func TestApplyCleanupRoots(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"lorekeep": "new"})

	staging := t.TempDir()
	writeTree(t, staging, map[string]string{"app.zip": "archive"})

	err := Apply(Options{
		Source:       src,
		Target:       dst,
		CleanupRoots: []string{staging, filepath.Join(staging, "never-existed")},
	}, discardLogger())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, statErr := os.Stat(staging); !os.IsNotExist(statErr) {
		t.Errorf("cleanup root %s survived", staging)
	}
}

// TestReplaceFileRetriesRename: a destination that is locked for the first
// few attempts must eventually be replaced without surfacing an error.
func TestReplaceFileRetriesRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTree(t, dir, map[string]string{"src": "new", "dst": "old"})

	attempts := 0
	prev := renameFile
	renameFile = func(oldpath, newpath string) error {
		attempts++
		if attempts < 4 {
			return errors.New("file busy")
		}
		return os.Rename(oldpath, newpath)
	}
	t.Cleanup(func() { renameFile = prev })

	if err := replaceFile(src, dst); err != nil {
		t.Fatalf("replaceFile: %v", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
	if got := readTreeFile(t, dir, "dst"); got != "new" {
		t.Errorf("dst = %q, want new", got)
	}
}

// TestReplaceFileExhaustsRetries: a permanently locked destination fails
// after exactly the attempt budget and leaves no temp sibling behind.
func TestReplaceFileExhaustsRetries(t *testing.T) {
	if testing.Short() {
		t.Skip("retry exhaustion waits out the full backoff budget")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeTree(t, dir, map[string]string{"src": "new", "dst": "old"})

	attempts := 0
	prev := renameFile
	renameFile = func(_, _ string) error {
		attempts++
		return errors.New("file busy")
	}
	t.Cleanup(func() { renameFile = prev })

	err := replaceFile(src, dst)
	if !errors.Is(err, ErrReplaceFailed) {
		t.Fatalf("replaceFile error = %v, want ErrReplaceFailed", err)
	}
	if attempts != renameMaxAttempts {
		t.Errorf("attempts = %d, want %d", attempts, renameMaxAttempts)
	}
	if got := readTreeFile(t, dir, "dst"); got != "old" {
		t.Errorf("dst = %q, want old content intact", got)
	}

	leftovers, globErr := filepath.Glob(filepath.Join(dir, ".lorekeep-tmp-*"))
	if globErr != nil {
		t.Fatalf("globbing temp siblings: %v", globErr)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp siblings left behind: %v", leftovers)
	}
}

// TestApplyAbortKeepsEarlierFiles: when one file exhausts its retries, the
// walk stops but files replaced before the failure stay replaced.
func TestApplyAbortKeepsEarlierFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("retry exhaustion waits out the full backoff budget")
	}

	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "new-a", "z.txt": "new-z"})
	writeTree(t, dst, map[string]string{"a.txt": "old-a", "z.txt": "old-z"})

	prev := renameFile
	renameFile = func(oldpath, newpath string) error {
		if filepath.Base(newpath) == "z.txt" {
			return errors.New("file busy")
		}
		return os.Rename(oldpath, newpath)
	}
	t.Cleanup(func() { renameFile = prev })

	err := Apply(Options{Source: src, Target: dst}, discardLogger())
	if !errors.Is(err, ErrReplaceFailed) {
		t.Fatalf("Apply error = %v, want ErrReplaceFailed", err)
	}

	// WalkDir visits lexically, so a.txt was replaced before z.txt failed.
	if got := readTreeFile(t, dst, "a.txt"); got != "new-a" {
		t.Errorf("a.txt = %q, earlier replacement was rolled back", got)
	}
	if got := readTreeFile(t, dst, "z.txt"); got != "old-z" {
		t.Errorf("z.txt = %q, want old content", got)
	}
}
