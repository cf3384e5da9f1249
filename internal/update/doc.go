// SPDX-License-Identifier: MPL-2.0

// Package update implements the caller-side half of the lorekeep
// self-update flow: parsing the installed version, locating a newer
// release on the feed, downloading and staging its payload, and finally
// launching the detached installer process that performs the actual
// tree replacement (see internal/install).
//
// Control returns to the caller as soon as the installer has been
// spawned; from that point the caller's only remaining job is to exit,
// because the installer waits for the caller's PID before touching the
// installation directory.
package update
