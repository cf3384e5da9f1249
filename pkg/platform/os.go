// SPDX-License-Identifier: MPL-2.0

package platform

import "runtime"

// OS name constants for runtime.GOOS comparisons.
// Centralizes the string literals to avoid scattered magic strings.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// CaseInsensitiveFS reports whether the default filesystem on the current
// platform compares paths case-insensitively. Windows (NTFS) and macOS
// (APFS/HFS+) default to case-insensitive volumes; everything else is
// treated as case-sensitive.
func CaseInsensitiveFS() bool {
	return runtime.GOOS == Windows || runtime.GOOS == Darwin
}

// ExeSuffix is the executable filename suffix for the current platform
// (".exe" on Windows, empty elsewhere).
func ExeSuffix() string {
	if runtime.GOOS == Windows {
		return ".exe"
	}
	return ""
}
