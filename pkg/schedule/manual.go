package schedule

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler for tests. Time only moves when
// Advance is called; due callbacks run synchronously on the advancing
// goroutine, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

// NewManual creates a Manual scheduler starting at an arbitrary fixed time.
func NewManual() *Manual {
	return &Manual{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *Manual) Schedule(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{m: m, at: m.now.Add(d), fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has been reached, in deadline order. Callbacks run without the scheduler
// lock held, so they may schedule or stop timers themselves.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	deadline := m.now
	m.mu.Unlock()

	for {
		t := m.popDue(deadline)
		if t == nil {
			return
		}
		t.fn()
	}
}

// popDue removes and returns the earliest unfired timer at or before
// deadline, or nil if none remain.
func (m *Manual) popDue(deadline time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.SliceStable(m.timers, func(i, j int) bool {
		return m.timers[i].at.Before(m.timers[j].at)
	})
	for len(m.timers) > 0 {
		t := m.timers[0]
		if t.at.After(deadline) {
			break
		}
		m.timers = m.timers[1:]
		if t.stopped {
			continue
		}
		t.fired = true
		return t
	}
	return nil
}

// Pending returns the number of scheduled, unfired, unstopped timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
