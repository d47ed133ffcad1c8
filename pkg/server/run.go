package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etamarw/roster/pkg/crypto"
	"github.com/etamarw/roster/pkg/model"
)

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.provider == nil {
		return fmt.Errorf("server: missing datastore dependency")
	}
	defer func() { _ = s.provider.Store().Close() }()

	// Ensure at least one admin account exists
	if err := s.ensureAdminUser(); err != nil {
		return err
	}

	// Start listeners
	if err := s.StartControl(); err != nil {
		return err
	}

	slog.Info("roster server running",
		"control", s.cfg.ListenAddr,
		"idle_timeout", s.cfg.IdleTimeout,
	)

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
}

// ensureAdminUser creates an admin account only on first run (no admins exist).
func (s *Server) ensureAdminUser() error {
	st := s.provider.Store()
	admins, err := st.ListUsersByRole(model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("server: check admins: %w", err)
	}
	if len(admins) > 0 {
		return nil // an admin already exists, don't generate more
	}

	password, err := crypto.GeneratePassword()
	if err != nil {
		return fmt.Errorf("server: generate admin password: %w", err)
	}
	admin := &model.User{Username: "admin", Role: model.RoleAdmin}
	if err := st.CreateUser(admin, password); err != nil {
		return fmt.Errorf("server: create admin user: %w", err)
	}

	slog.Info("========================================")
	slog.Info("ADMIN PASSWORD (save this!):", "user", "admin", "password", password)
	slog.Info("========================================")
	return nil
}
