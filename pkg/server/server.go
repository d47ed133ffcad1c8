// Package server implements the roster server: the session registry,
// the control plane, and the user services behind it.
package server

import (
	"context"
	"net"

	"github.com/etamarw/roster/pkg/datastore"
	"github.com/etamarw/roster/pkg/notify"
	"github.com/etamarw/roster/pkg/schedule"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Provider and will Close() it on shutdown.
type Dependencies struct {
	Provider datastore.Provider

	// Scheduler drives idle-timeout eviction. Nil means wall-clock timers.
	Scheduler schedule.Scheduler

	// Notifier delivers out-of-band messages to applicants. Nil means
	// log-only delivery.
	Notifier notify.Notifier
}

// Server is the main roster server.
type Server struct {
	cfg      Config
	registry *Registry
	users    *UserService
	metrics  *Metrics
	provider datastore.Provider
	sched    schedule.Scheduler
	ln       net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	sched := deps.Scheduler
	if sched == nil {
		sched = schedule.NewClock()
	}
	metrics := NewMetrics()
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(deps.Provider.Store(), sched, cfg.IdleTimeout.Std(), metrics),
		users:    NewUserService(deps.Provider, deps.Notifier, metrics),
		metrics:  metrics,
		provider: deps.Provider,
		sched:    sched,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Users returns the user service.
func (s *Server) Users() *UserService {
	return s.users
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
