// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package platform

import "syscall"

// DetachedSysProcAttr returns the process attributes for spawning a child in
// its own session. Setsid detaches the child from the controlling terminal
// and process group, so it keeps running after the parent exits.
func DetachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
