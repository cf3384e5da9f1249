// SPDX-License-Identifier: MPL-2.0

package update

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"lorekeep/pkg/platform"
)

// installerBaseName is the installer binary shipped as a sibling of the
// main executable in packaged installs.
const installerBaseName = "lorekeep-installer"

// installerEnvOverride names an environment variable that points at the
// installer binary in unpackaged (development) runs.
const installerEnvOverride = "LOREKEEP_INSTALLER"

// ErrInstallerMissing indicates no installer binary could be located. It is
// raised synchronously, before the caller exits — the last point where the
// caller can still react.
var ErrInstallerMissing = errors.New("installer binary not found")

var (
	// osExecutable is a test seam for os.Executable().
	//
	//nolint:gochecknoglobals // Test seam for os.Executable().
	osExecutable = os.Executable

	// startProcess is a test seam for spawning the installer.
	//
	//nolint:gochecknoglobals // Test seam for exec.Cmd.Start().
	startProcess = func(cmd *exec.Cmd) error { return cmd.Start() }
)

// LaunchOptions is the one-shot command handed to the installer process.
// Constructed by Launch, consumed once by the installer's entry point,
// never persisted.
type LaunchOptions struct {
	PayloadRoot   string   // Staged payload to copy from (required)
	InstallRoot   string   // Target install tree; defaults to the running executable's directory
	RestartTarget string   // Optional executable for the installer to relaunch when done
	WaitPID       int      // PID the installer waits on; defaults to the caller's own PID
	Preserve      []string // Relative path prefixes skipped entirely during replacement
	CleanupRoots  []string // Directories the installer deletes after a successful apply
}

// Launch locates the installer binary, relocates it out of the install tree,
// and spawns it as a detached process carrying opts on its command line.
//
// In packaged mode the installer is a sibling file of the running binary;
// it is copied into a fresh private temp directory before invocation so its
// backing file is never one of the files it will overwrite. That temp
// directory is registered as an extra cleanup root. In unpackaged mode the
// binary is resolved from the LOREKEEP_INSTALLER environment variable or
// the PATH.
//
// The spawned process survives the caller's exit and shares no inherited
// handles with it. Launch failure is returned synchronously; after a
// successful return the caller's only remaining job is to exit.
func Launch(opts LaunchOptions) (*os.Process, error) {
	if opts.PayloadRoot == "" {
		return nil, errors.New("payload root is required")
	}

	execPath, err := osExecutable()
	if err != nil {
		return nil, fmt.Errorf("resolving executable path: %w", err)
	}

	if opts.InstallRoot == "" {
		opts.InstallRoot = filepath.Dir(execPath)
	}
	if opts.WaitPID == 0 {
		// By default the installer waits for whoever launched it.
		opts.WaitPID = os.Getpid()
	}

	installerPath, extraCleanup, err := resolveInstaller(execPath)
	if err != nil {
		return nil, err
	}
	if extraCleanup != "" {
		opts.CleanupRoots = append(opts.CleanupRoots, extraCleanup)
	}

	cmd := exec.Command(installerPath, installerArgs(opts)...)
	cmd.SysProcAttr = platform.DetachedSysProcAttr()
	// No inherited stdio: the caller is about to exit and the installer
	// must not hold any of its handles open.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := startProcess(cmd); err != nil {
		if extraCleanup != "" {
			_ = os.RemoveAll(extraCleanup)
		}
		return nil, fmt.Errorf("spawning installer: %w", err)
	}

	proc := cmd.Process
	// Detach bookkeeping: the caller never waits on the installer.
	_ = proc.Release()

	return proc, nil
}

// installerArgs renders opts as the installer's command line.
func installerArgs(opts LaunchOptions) []string {
	args := []string{
		"--source", opts.PayloadRoot,
		"--target", opts.InstallRoot,
		"--wait-for-pid", strconv.Itoa(opts.WaitPID),
	}
	for _, p := range opts.Preserve {
		args = append(args, "--preserve", p)
	}
	for _, r := range opts.CleanupRoots {
		args = append(args, "--cleanup-root", r)
	}
	if opts.RestartTarget != "" {
		args = append(args, "--restart-target", opts.RestartTarget)
	}
	return args
}

// resolveInstaller finds the installer binary for the current execution
// mode and, in packaged mode, copies it into a private temp directory that
// is returned as an extra cleanup root.
func resolveInstaller(execPath string) (path, cleanupRoot string, err error) {
	sibling := filepath.Join(filepath.Dir(execPath), installerBaseName+platform.ExeSuffix())
	if _, statErr := os.Stat(sibling); statErr == nil {
		return relocateInstaller(sibling)
	}

	// Unpackaged (development) mode: explicit override, then PATH.
	if override := os.Getenv(installerEnvOverride); override != "" {
		if _, statErr := os.Stat(override); statErr == nil {
			return override, "", nil
		}
		return "", "", fmt.Errorf("%w: %s points at %s", ErrInstallerMissing, installerEnvOverride, override)
	}
	if found, lookErr := exec.LookPath(installerBaseName + platform.ExeSuffix()); lookErr == nil {
		return found, "", nil
	}

	return "", "", fmt.Errorf("%w: no sibling next to %s and no %s override", ErrInstallerMissing, execPath, installerEnvOverride)
}

// relocateInstaller copies the packaged installer out of the install tree so
// a running installer never has to overwrite its own backing file.
func relocateInstaller(sibling string) (path, cleanupRoot string, err error) {
	tempDir, err := os.MkdirTemp("", "lorekeep-installer-*")
	if err != nil {
		return "", "", fmt.Errorf("creating installer temp directory: %w", err)
	}

	relocated := filepath.Join(tempDir, filepath.Base(sibling))
	if err := copyExecutable(sibling, relocated); err != nil {
		_ = os.RemoveAll(tempDir)
		return "", "", fmt.Errorf("relocating installer: %w", err)
	}

	return relocated, tempDir, nil
}

// copyExecutable copies src to dst preserving the source's file mode.
func copyExecutable(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }() // read-only handle

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		_ = os.Remove(dst)
		return err
	}

	return nil
}
