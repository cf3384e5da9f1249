// SPDX-License-Identifier: MPL-2.0

// Package platform centralizes OS-specific knowledge shared by the updater
// and the installer: OS name constants, filesystem case sensitivity, and the
// process attributes needed to spawn a detached child that survives its
// parent's exit.
package platform
