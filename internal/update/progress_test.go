// SPDX-License-Identifier: MPL-2.0

package update

import "testing"

func TestNotifyNilCallback(t *testing.T) {
	notify(nil, "msg", 0.5) // must not panic
}

// TestNotifySwallowsPanic: a broken progress callback must never take the
// update flow down with it.
func TestNotifySwallowsPanic(t *testing.T) {
	calls := 0
	cb := func(string, float64) {
		calls++
		panic("ui is gone")
	}

	notify(cb, "first", 0.1)
	notify(cb, "second", 0.2)

	if calls != 2 {
		t.Errorf("calls = %d, want 2 (panics must not stop later notifications)", calls)
	}
}
