package pipeline

import "time"

// Clock abstracts time so cadence and backoff waits are deterministic in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// Now returns wall-clock time.
func (realClock) Now() time.Time {
	return time.Now()
}

// After waits d on a runtime timer.
func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// RealClock returns the production clock.
// Params: none.
// Returns: clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}
