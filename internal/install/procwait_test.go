// SPDX-License-Identifier: MPL-2.0

package install

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

// stubPID replaces the liveness probe for the duration of the test.
func stubPID(t *testing.T, alive func(pid int) bool) {
	t.Helper()
	prev := pidAlive
	pidAlive = alive
	t.Cleanup(func() { pidAlive = prev })
}

func TestWaitForExitAlreadyGone(t *testing.T) {
	stubPID(t, func(int) bool { return false })

	start := time.Now()
	if err := waitForExit(1234, time.Second); err != nil {
		t.Fatalf("waitForExit: %v", err)
	}
	if elapsed := time.Since(start); elapsed > waitPollInterval {
		t.Errorf("waitForExit slept %s for an already-dead pid", elapsed)
	}
}

func TestWaitForExitAfterPolls(t *testing.T) {
	polls := 0
	stubPID(t, func(int) bool {
		polls++
		return polls < 3
	})

	if err := waitForExit(1234, 5*time.Second); err != nil {
		t.Fatalf("waitForExit: %v", err)
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
}

func TestWaitForExitTimeout(t *testing.T) {
	stubPID(t, func(int) bool { return true })

	err := waitForExit(1234, 50*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("waitForExit error = %v, want ErrWaitTimeout", err)
	}
}

// TestWaitForExitRealChild exercises the shipped process-table probe, not
// a stub: waitForExit must block while a real short-lived child is alive
// and resolve only once it is gone, which is the gate in front of any
// file copying.
func TestWaitForExitRealChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test child uses the sleep binary")
	}

	cmd := exec.Command("sleep", "0.5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting child: %v", err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	if !pidAlive(cmd.Process.Pid) {
		t.Fatal("probe reported a running child as dead")
	}

	if err := waitForExit(cmd.Process.Pid, 10*time.Second); err != nil {
		t.Fatalf("waitForExit: %v", err)
	}

	// The probe only sees the child disappear after it has exited and been
	// reaped, so by the time waitForExit returns the Wait must be done.
	select {
	case <-exited:
	default:
		t.Fatal("waitForExit returned while the child was still running")
	}
}

// TestPIDAliveSelf checks the probe against the one PID guaranteed to be
// in the process table.
func TestPIDAliveSelf(t *testing.T) {
	if !pidAlive(os.Getpid()) {
		t.Error("probe reported the current process as dead")
	}
}

func TestWaitForExitZeroPID(t *testing.T) {
	stubPID(t, func(int) bool {
		t.Error("probe called for pid 0")
		return true
	})

	if err := waitForExit(0, time.Second); err != nil {
		t.Fatalf("waitForExit: %v", err)
	}
}
