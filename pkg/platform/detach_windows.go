// SPDX-License-Identifier: MPL-2.0

//go:build windows

package platform

import "syscall"

// detachedProcess is the DETACHED_PROCESS creation flag, which starts the
// child without a console. Not exported by the syscall package.
const detachedProcess = 0x00000008

// DetachedSysProcAttr returns the process attributes for spawning a child
// that is not tied to the parent's console or process group, so it keeps
// running after the parent exits.
func DetachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
		HideWindow:    true,
	}
}
