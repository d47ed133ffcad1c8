// Package schedule provides one-shot cancellable timers behind a small
// interface so that components owning timers can be tested against a
// deterministic clock instead of wall time.
package schedule

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the cancellation prevented
	// the callback from running; stopping an already-fired or already-stopped
	// timer is a safe no-op that returns false.
	Stop() bool
}

// Scheduler schedules one-shot callbacks.
type Scheduler interface {
	// Schedule runs fn once after d has elapsed, on an independent goroutine
	// (or the clock-advancing goroutine for fake implementations). The
	// callback may still execute concurrently with a Stop call that lost the
	// race; callers must tolerate that.
	Schedule(d time.Duration, fn func()) Timer

	// Now returns the scheduler's current time.
	Now() time.Time
}

// Clock is the wall-clock Scheduler backed by time.AfterFunc.
type Clock struct{}

// NewClock returns a wall-clock scheduler.
func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Schedule(d time.Duration, fn func()) Timer {
	return clockTimer{time.AfterFunc(d, fn)}
}

func (c *Clock) Now() time.Time {
	return time.Now()
}

type clockTimer struct {
	t *time.Timer
}

func (t clockTimer) Stop() bool {
	return t.t.Stop()
}
