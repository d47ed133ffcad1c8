package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual()

	var order []string
	m.Schedule(3*time.Minute, func() { order = append(order, "c") })
	m.Schedule(1*time.Minute, func() { order = append(order, "a") })
	m.Schedule(2*time.Minute, func() { order = append(order, "b") })

	m.Advance(90 * time.Second)
	assert.Equal(t, []string{"a"}, order)

	m.Advance(10 * time.Minute)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, m.Pending())
}

func TestManualStopPreventsFire(t *testing.T) {
	m := NewManual()

	fired := false
	timer := m.Schedule(time.Minute, func() { fired = true })

	require.True(t, timer.Stop())
	m.Advance(time.Hour)
	assert.False(t, fired)

	// Stopping again is a no-op.
	assert.False(t, timer.Stop())
}

func TestManualStopAfterFire(t *testing.T) {
	m := NewManual()

	fired := 0
	timer := m.Schedule(time.Minute, func() { fired++ })

	m.Advance(time.Minute)
	assert.Equal(t, 1, fired)

	// Late cancellation of a fired timer must be a safe no-op.
	assert.False(t, timer.Stop())
	m.Advance(time.Hour)
	assert.Equal(t, 1, fired)
}

func TestManualCallbackMaySchedule(t *testing.T) {
	m := NewManual()

	rearmed := false
	m.Schedule(time.Minute, func() {
		m.Schedule(time.Minute, func() { rearmed = true })
	})

	m.Advance(time.Minute)
	assert.False(t, rearmed)
	assert.Equal(t, 1, m.Pending())

	m.Advance(time.Minute)
	assert.True(t, rearmed)
}

func TestClockSchedule(t *testing.T) {
	c := NewClock()

	done := make(chan struct{})
	c.Schedule(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wall-clock timer did not fire")
	}

	// Stopping a fired timer reports false and does not panic.
	timer := c.Schedule(time.Millisecond, func() {})
	time.Sleep(50 * time.Millisecond)
	if timer.Stop() {
		t.Fatal("Stop on fired timer reported true")
	}
}
