package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime control connections accepted
	ActiveConnections atomic.Int64 // current active control connections

	// Session counters
	Logins        atomic.Int64 // successful logins
	FailedLogins  atomic.Int64 // rejected login attempts
	Logouts       atomic.Int64 // voluntary and forced logouts
	Evictions     atomic.Int64 // sessions expired by the idle timer
	ForcedNotices atomic.Int64 // forced-logout notices sent to clients

	// Registration counters
	RegistrationsFiled    atomic.Int64 // registration requests created
	RegistrationsAccepted atomic.Int64 // registration requests approved
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`

	Logins        int64 `json:"logins"`
	FailedLogins  int64 `json:"failed_logins"`
	Logouts       int64 `json:"logouts"`
	Evictions     int64 `json:"evictions"`
	ForcedNotices int64 `json:"forced_notices"`

	RegistrationsFiled    int64 `json:"registrations_filed"`
	RegistrationsAccepted int64 `json:"registrations_accepted"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:                uptime.Truncate(time.Second).String(),
		UptimeSeconds:         int64(uptime.Seconds()),
		ActiveConnections:     m.ActiveConnections.Load(),
		TotalConnections:      m.TotalConnections.Load(),
		Logins:                m.Logins.Load(),
		FailedLogins:          m.FailedLogins.Load(),
		Logouts:               m.Logouts.Load(),
		Evictions:             m.Evictions.Load(),
		ForcedNotices:         m.ForcedNotices.Load(),
		RegistrationsFiled:    m.RegistrationsFiled.Load(),
		RegistrationsAccepted: m.RegistrationsAccepted.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"logins", s.Logins,
		"failed_logins", s.FailedLogins,
		"evictions", s.Evictions,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
