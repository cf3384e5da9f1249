// SPDX-License-Identifier: MPL-2.0

package install

import (
	"fmt"
	"os/exec"

	"lorekeep/pkg/platform"
)

// restart spawns the freshly installed application detached from the
// installer, with the install root as working directory. The installer
// exits right after, so the child must not inherit its handles.
func restart(target, workDir string) error {
	cmd := exec.Command(target)
	cmd.Dir = workDir
	cmd.SysProcAttr = platform.DetachedSysProcAttr()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", target, err)
	}
	return cmd.Process.Release()
}
