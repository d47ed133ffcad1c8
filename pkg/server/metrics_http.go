package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :9401 by default — configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("roster_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("roster_connections_active", "Current active control connections.", "gauge",
		m.ActiveConnections.Load())
	write("roster_connections_total", "Lifetime control connections accepted.", "counter",
		m.TotalConnections.Load())

	write("roster_sessions_active", "Current logged-in sessions.", "gauge",
		int64(s.registry.Count()))
	write("roster_logins_total", "Successful logins.", "counter",
		m.Logins.Load())
	write("roster_logins_failed_total", "Rejected login attempts.", "counter",
		m.FailedLogins.Load())
	write("roster_logouts_total", "Voluntary and forced logouts.", "counter",
		m.Logouts.Load())
	write("roster_evictions_total", "Sessions expired by the idle timer.", "counter",
		m.Evictions.Load())
	write("roster_forced_notices_total", "Forced-logout notices sent.", "counter",
		m.ForcedNotices.Load())

	write("roster_registrations_filed_total", "Registration requests created.", "counter",
		m.RegistrationsFiled.Load())
	write("roster_registrations_accepted_total", "Registration requests approved.", "counter",
		m.RegistrationsAccepted.Load())
}
