// SPDX-License-Identifier: MPL-2.0

// Package install implements the installer-side half of the lorekeep
// self-update flow: it runs inside the spawned lorekeep-installer process,
// waits for the launching process to exit, and replaces the live install
// tree with the staged payload while leaving preserved paths untouched.
//
// The two processes cooperate through the filesystem and the process table
// only. There is no IPC channel and no cancellation once the tree replace
// has started; the installer needs nothing further from its launcher and
// must tolerate it vanishing at any point after spawn.
package install
