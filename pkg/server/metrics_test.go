package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Logins.Add(3)
	m.FailedLogins.Add(1)
	m.Evictions.Add(2)

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.Logins)
	assert.Equal(t, int64(1), s.FailedLogins)
	assert.Equal(t, int64(2), s.Evictions)

	var decoded MetricsSnapshot
	require.NoError(t, json.Unmarshal([]byte(m.JSON()), &decoded))
	assert.Equal(t, int64(3), decoded.Logins)
}

func TestMetricsHTTPExposition(t *testing.T) {
	srv, _ := newTestServer(t)

	cc, _ := pipeClient(t)
	login(t, srv, cc, "alice", "pw-alice")

	rec := httptest.NewRecorder()
	srv.handleMetrics(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, body, "# TYPE roster_logins_total counter")
	assert.Contains(t, body, "roster_logins_total 1")
	assert.Contains(t, body, "roster_sessions_active 1")
	assert.Contains(t, body, "roster_uptime_seconds")
}
