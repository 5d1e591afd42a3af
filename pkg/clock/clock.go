// Package clock abstracts wall time and one-shot timers so the engine can be
// driven by a deterministic clock in tests.
package clock

import "time"

// Timer is the handle for a callback armed with AfterFunc. Stop reports
// whether the call prevented the callback from running; a false return means
// the callback already fired or was stopped before.
type Timer interface {
	Stop() bool
}

// Clock supplies the current time and schedules one-shot callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

// New returns a Clock backed by the runtime clock.
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
