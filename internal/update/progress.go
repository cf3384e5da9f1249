// SPDX-License-Identifier: MPL-2.0

package update

// Progress receives human-readable status for long-running operations.
// fraction is in [0, 1]; operations that cannot estimate their total
// report 0.0 throughout.
type Progress func(message string, fraction float64)

// notify invokes cb, swallowing a nil callback and any panic it raises.
// Reporting must never abort the operation it reports on.
func notify(cb Progress, message string, fraction float64) {
	if cb == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	cb(message, fraction)
}
