package identity

import "time"

// SetNowForTest replaces the clock and returns a restore func.
func SetNowForTest(fn func() time.Time) func() {
	prev := now
	now = fn
	return func() { now = prev }
}
