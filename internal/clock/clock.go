// Package clock provides an abstraction over time operations for testability.
// Production code uses RealClock, tests can inject a fake for deterministic behavior.
package clock

import (
	"errors"
	"time"
)

// ErrZeroInstant is returned by ScheduleAt when the target instant is the zero time.
var ErrZeroInstant = errors.New("clock: schedule target is the zero instant")

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// AfterFunc waits for the duration to elapse and then calls f in its own goroutine.
	// Returns a Timer that can be used to cancel the call.
	AfterFunc(d time.Duration, f func()) Timer
	// ScheduleAt arranges for f to run in its own goroutine at the absolute
	// instant at. A target in the past fires as soon as possible, never before.
	// Returns a Timer that can be used to cancel the call.
	ScheduleAt(at time.Time, f func()) (Timer, error)
	// Now returns the current time.
	Now() time.Time
}

// Timer represents a pending callback.
type Timer interface {
	// Stop prevents the Timer from firing. Returns true if the call was stopped,
	// false if the timer has already expired or been stopped.
	Stop() bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// NewRealClock creates a new RealClock.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// AfterFunc implements Clock.AfterFunc using time.AfterFunc.
func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{timer: time.AfterFunc(d, f)}
}

// ScheduleAt implements Clock.ScheduleAt by converting the absolute instant
// into a delay from now. time.AfterFunc guarantees the callback never runs
// before the delay has elapsed.
func (c *RealClock) ScheduleAt(at time.Time, f func()) (Timer, error) {
	if at.IsZero() {
		return nil, ErrZeroInstant
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	return &realTimer{timer: time.AfterFunc(d, f)}, nil
}

// Now implements Clock.Now using time.Now.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// realTimer wraps time.Timer to implement Timer interface.
type realTimer struct {
	timer *time.Timer
}

// Stop implements Timer.Stop.
func (t *realTimer) Stop() bool {
	return t.timer.Stop()
}
