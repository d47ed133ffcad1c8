package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/etamarw/roster/pkg/model"
	"github.com/etamarw/roster/pkg/protocol"
	"github.com/etamarw/roster/pkg/rbac"
)

// clientConn wraps a control connection with a stable identity and serialized
// writes, so the registry's push notices never interleave with responses.
type clientConn struct {
	id   string
	conn net.Conn
	wmu  sync.Mutex
}

func newClientConn(conn net.Conn) *clientConn {
	return &clientConn{id: uuid.NewString(), conn: conn}
}

func (c *clientConn) ID() string         { return c.id }
func (c *clientConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
func (c *clientConn) Close() error       { return c.conn.Close() }

func (c *clientConn) Send(msg *protocol.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return protocol.WriteMessage(c.conn, msg)
}

// loginLimiter throttles login attempts per remote host.
type loginLimiter struct {
	mu      sync.Mutex
	perHost map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func newLoginLimiter(perSecond float64, burst int) *loginLimiter {
	return &loginLimiter{
		perHost: make(map[string]*rate.Limiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *loginLimiter) allow(host string) bool {
	l.mu.Lock()
	lim, ok := l.perHost[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.perHost[host] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// StartControl starts the TCP/TLS control listener.
func (s *Server) StartControl() error {
	cert, err := loadOrGenerateTLS(s.cfg)
	if err != nil {
		return fmt.Errorf("server: tls: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	ln, err := tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
	if err != nil {
		return fmt.Errorf("server: listen control: %w", err)
	}
	s.ln = ln

	limiter := newLoginLimiter(s.cfg.LoginRate, s.cfg.LoginBurst)
	slog.Info("control plane listening", "addr", s.cfg.ListenAddr)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					slog.Error("accept error", "err", err)
					continue
				}
			}
			go s.handleConn(conn, limiter)
		}
	}()

	return nil
}

// handleConn handles a single control connection lifecycle. The first message
// must be a login request; everything after it is dispatched until the client
// disconnects or logs out.
func (s *Server) handleConn(conn net.Conn, limiter *loginLimiter) {
	defer func() { _ = conn.Close() }()

	cc := newClientConn(conn)
	remoteAddr := cc.RemoteAddr()
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	defer s.metrics.ActiveConnections.Add(-1)
	slog.Debug("new control connection", "remote", remoteAddr)

	// First message must be LoginRequest
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		slog.Debug("login read failed", "remote", remoteAddr, "err", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{}) // clear deadline

	if msg.LoginRequest == nil {
		respond(cc, &protocol.Response{Code: protocol.ResultInvalidInput, Message: "first message must be login_request"})
		return
	}

	host, _, _ := net.SplitHostPort(remoteAddr)
	if !limiter.allow(host) {
		s.metrics.FailedLogins.Add(1)
		slog.Warn("login throttled", "remote", remoteAddr)
		respond(cc, &protocol.Response{Code: protocol.ResultInvalidInput, Message: "too many login attempts, slow down"})
		return
	}

	user, err := s.registry.Login(msg.LoginRequest.Username, msg.LoginRequest.Password, cc)
	if err != nil {
		respondErr(cc, err)
		return
	}
	respond(cc, &protocol.Response{Code: protocol.ResultOK, User: &user})
	slog.Info("client logged in", "user", user.Username, "role", user.Role, "remote", remoteAddr)

	// A dropped connection counts as a silent logout. The second Logout after
	// a voluntary or forced one finds nothing bound and no-ops.
	defer func() { _ = s.registry.Logout(cc, "") }()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			if err == io.EOF || isClosedErr(err) {
				return
			}
			slog.Debug("read error", "user", user.Username, "err", err)
			return
		}

		if !s.dispatch(cc, msg) {
			return
		}
	}
}

// dispatch handles one message from a logged-in client. It returns false when
// the connection should be closed.
func (s *Server) dispatch(cc *clientConn, msg *protocol.Message) bool {
	if msg.Ping != nil {
		_ = cc.Send(&protocol.Message{Pong: &protocol.Pong{Timestamp: msg.Ping.Timestamp}})
		return true
	}

	if msg.LogoutRequest != nil {
		err := s.registry.Logout(cc, "")
		if err != nil {
			respondErr(cc, err)
		} else {
			respond(cc, &protocol.Response{Code: protocol.ResultOK})
		}
		return false
	}

	// Every other operation requires a live session. Resolving also counts as
	// activity and postpones idle expiry.
	user, ok := s.registry.ResolveUser(cc)
	if !ok {
		respond(cc, &protocol.Response{Code: protocol.ResultNotFound, Message: "not logged in"})
		return false
	}

	switch {
	case msg.FetchUserRequest != nil:
		req := msg.FetchUserRequest
		// Anyone may look themselves up; everything else needs the permission.
		selfLookup := req.By == model.FetchByUsername && req.Argument == user.Username
		if !selfLookup {
			if errMsg := rbac.RequirePermission(user.Role, model.PermFetchUsers); errMsg != "" {
				respond(cc, &protocol.Response{Code: protocol.ResultInvalidInput, Message: errMsg})
				return true
			}
		}
		users, err := s.users.FetchUser(req.By, req.Argument)
		if err != nil {
			respondErr(cc, err)
			return true
		}
		resp := &protocol.Response{Code: protocol.ResultOK, Users: users}
		if len(users) == 1 {
			resp.User = &users[0]
		}
		respond(cc, resp)

	case msg.UpdateUserRequest != nil:
		if errMsg := rbac.RequirePermission(user.Role, model.PermUpdateUsers); errMsg != "" {
			respond(cc, &protocol.Response{Code: protocol.ResultInvalidInput, Message: errMsg})
			return true
		}
		if err := s.users.UpdateUser(msg.UpdateUserRequest.User); err != nil {
			respondErr(cc, err)
			return true
		}
		slog.Info("user updated", "target", msg.UpdateUserRequest.User.Username, "by", user.Username)
		respond(cc, &protocol.Response{Code: protocol.ResultOK})

	case msg.RegisterRequest != nil:
		if err := s.users.CreateRegistration(msg.RegisterRequest.Registration); err != nil {
			respondErr(cc, err)
			return true
		}
		slog.Info("registration filed", "applicant", msg.RegisterRequest.Registration.Username, "by", user.Username)
		respond(cc, &protocol.Response{Code: protocol.ResultOK})

	case msg.RegistrationListReq != nil:
		if errMsg := rbac.RequirePermission(user.Role, model.PermManageRegistrations); errMsg != "" {
			respond(cc, &protocol.Response{Code: protocol.ResultInvalidInput, Message: errMsg})
			return true
		}
		regs, err := s.users.RegistrationList(msg.RegistrationListReq.Area)
		if err != nil {
			respondErr(cc, err)
			return true
		}
		respond(cc, &protocol.Response{Code: protocol.ResultOK, Registrations: regs})

	case msg.AcceptRegistration != nil:
		if errMsg := rbac.RequirePermission(user.Role, model.PermManageRegistrations); errMsg != "" {
			respond(cc, &protocol.Response{Code: protocol.ResultInvalidInput, Message: errMsg})
			return true
		}
		if err := s.users.AcceptRegistration(s.ctx, msg.AcceptRegistration.Username); err != nil {
			respondErr(cc, err)
			return true
		}
		respond(cc, &protocol.Response{Code: protocol.ResultOK})

	case msg.RosterRequest != nil:
		if errMsg := rbac.RequirePermission(user.Role, model.PermViewRoster); errMsg != "" {
			respond(cc, &protocol.Response{Code: protocol.ResultInvalidInput, Message: errMsg})
			return true
		}
		respond(cc, &protocol.Response{Code: protocol.ResultOK, Roster: s.registry.Roster()})

	default:
		respond(cc, &protocol.Response{Code: protocol.ResultInvalidInput, Message: "unrecognized request"})
	}
	return true
}

func respond(cc *clientConn, resp *protocol.Response) {
	if err := cc.Send(&protocol.Message{Response: resp}); err != nil {
		slog.Debug("response write failed", "conn", cc.ID(), "err", err)
	}
}

// respondErr maps service errors to wire result codes.
func respondErr(cc *clientConn, err error) {
	resp := &protocol.Response{Message: err.Error()}
	switch {
	case errors.Is(err, ErrInvalidCredential):
		resp.Code = protocol.ResultInvalidCredential
	case errors.Is(err, ErrInvalidInput):
		resp.Code = protocol.ResultInvalidInput
	default:
		resp.Code = protocol.ResultNotFound
	}
	respond(cc, resp)
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		err.Error() == "tls: use of closed connection"
}
