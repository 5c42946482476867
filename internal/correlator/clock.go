package correlator

import "time"

// Clock abstracts wall-clock access so timing behavior (silence windows,
// wait deadlines, poll wakeups) can be unit-tested without real delays.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After behaves like time.After.
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
