// SPDX-License-Identifier: MPL-2.0

package install

import (
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// waitPollInterval is the fixed interval between liveness probes. The
// cross-platform "is this PID still running" primitive is fundamentally a
// poll, not a push, so the wait blocks the installer's single thread for
// the duration.
const waitPollInterval = 200 * time.Millisecond

// ErrWaitTimeout indicates the launching process did not exit within the
// allowed window. The update is abandoned; nothing has been copied.
var ErrWaitTimeout = errors.New("timed out waiting for process to exit")

// pidAlive is a test seam over the process-table probe.
//
//nolint:gochecknoglobals // Test seam for process.PidExists.
var pidAlive = func(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		// Ambiguous or permission-denied probes resolve to "alive": never
		// start copying files a process might still hold open.
		return true
	}
	return alive
}

// waitForExit polls until the process with the given PID is gone or timeout
// elapses. Returns immediately when pid is zero or negative.
func waitForExit(pid int, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}

	deadline := time.Now().Add(timeout)
	for pidAlive(pid) {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: pid %d after %s", ErrWaitTimeout, pid, timeout)
		}
		time.Sleep(waitPollInterval)
	}
	return nil
}
