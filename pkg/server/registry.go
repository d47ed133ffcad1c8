package server

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/etamarw/roster/pkg/datastore"
	"github.com/etamarw/roster/pkg/model"
	"github.com/etamarw/roster/pkg/protocol"
	"github.com/etamarw/roster/pkg/schedule"
)

// Result errors returned by registry and user operations. Callers branch on
// these; they are values, never panics.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInvalidInput      = errors.New("invalid input")
)

// Logout reasons pushed to clients. A voluntary client-initiated logout
// carries no reason and triggers no notice.
const (
	ReasonExpired   = "Session expired"
	ReasonDisplaced = "Signed in from another connection"
)

// Conn is the transport-level handle for a connected client. The registry
// binds sessions to it and uses Send to push the forced-logout notice;
// everything else about the transport is out of its sight.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(msg *protocol.Message) error
	Close() error
}

// session is the live binding between a principal and a connection.
type session struct {
	user      model.User // immutable snapshot taken at login
	conn      Conn
	timer     schedule.Timer
	expiresAt time.Time
	gen       uint64 // bumped on every arm; stale timer fires carry an old value
}

// Registry tracks which principals are currently connected, binds each to a
// connection, and enforces the idle-timeout eviction policy.
//
// The sessions map (keyed by username) is the single source of truth; conns
// is a derived index and roster a derived projection, all three mutated only
// together under one exclusive lock. None of the operations perform I/O
// while holding the lock: forced-logout notices and OnChange callbacks run
// after release.
type Registry struct {
	store datastore.Store
	sched schedule.Scheduler
	idle  time.Duration

	mu       sync.Mutex
	sessions map[string]*session     // username -> session (source of truth)
	conns    map[string]string       // connection ID -> username (derived)
	roster   []model.ConnectedClient // derived projection, ordered by login

	// OnChange, when set, receives a roster snapshot after every roster
	// mutation. Invoked without the registry lock held.
	OnChange func([]model.ConnectedClient)

	metrics *Metrics // optional
}

// NewRegistry creates a session registry. idle is the inactivity window
// after which a session is evicted.
func NewRegistry(store datastore.Store, sched schedule.Scheduler, idle time.Duration, metrics *Metrics) *Registry {
	return &Registry{
		store:    store,
		sched:    sched,
		idle:     idle,
		sessions: make(map[string]*session),
		conns:    make(map[string]string),
		metrics:  metrics,
	}
}

// Login authenticates username/password against the credential store and
// binds a session to conn. A credential-store failure is treated as
// ErrNotFound (fail closed). If the principal already has a live session on
// another connection, that connection is sent a forced-logout notice and
// displaced before the new session is installed.
func (r *Registry) Login(username, password string, conn Conn) (model.User, error) {
	if username == "" || password == "" || conn == nil {
		return model.User{}, ErrInvalidInput
	}

	u, err := r.store.GetUserByUsername(username)
	if err != nil {
		slog.Error("credential store lookup failed", "user", username, "err", err)
		r.countFailedLogin()
		return model.User{}, ErrNotFound
	}
	if u == nil {
		r.countFailedLogin()
		return model.User{}, ErrNotFound
	}
	ok, err := r.store.CheckCredential(username, password)
	if err != nil {
		slog.Error("credential check failed", "user", username, "err", err)
		r.countFailedLogin()
		return model.User{}, ErrNotFound
	}
	if !ok {
		r.countFailedLogin()
		return model.User{}, ErrInvalidCredential
	}

	r.mu.Lock()
	var displaced Conn
	if old, exists := r.sessions[username]; exists {
		displaced = old.conn
		r.removeLocked(old)
	}
	// A connection can carry at most one session. If this handle is still
	// bound to another principal, that stale session goes too.
	if bound, exists := r.conns[conn.ID()]; exists && bound != username {
		r.removeLocked(r.sessions[bound])
	}
	sess := &session{user: *u, conn: conn}
	r.armLocked(sess)
	r.sessions[username] = sess
	r.conns[conn.ID()] = username
	r.roster = append(r.roster, model.ConnectedClient{
		Addr:     conn.RemoteAddr(),
		Username: u.Username,
		Role:     u.Role,
	})
	snapshot := r.rosterLocked()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Logins.Add(1)
	}
	slog.Info("user logged in", "user", u.Username, "role", u.Role, "remote", conn.RemoteAddr())

	if displaced != nil && displaced.ID() != conn.ID() {
		r.sendNotice(displaced, username, ReasonDisplaced)
	}
	r.changed(snapshot)
	return *u, nil
}

// Logout tears down the session bound to conn. A non-empty reason marks a
// forced logout: the client is notified after the teardown commits. Calling
// Logout for a connection with no session returns ErrNotFound and mutates
// nothing, which makes the operation idempotent and makes stale timer fires
// harmless.
func (r *Registry) Logout(conn Conn, reason string) error {
	if conn == nil {
		return ErrInvalidInput
	}

	r.mu.Lock()
	username, ok := r.conns[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	sess := r.sessions[username]
	r.removeLocked(sess)
	snapshot := r.rosterLocked()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Logouts.Add(1)
	}
	slog.Info("user logged out", "user", username, "forced", reason != "")

	if reason != "" {
		r.sendNotice(sess.conn, username, reason)
	}
	r.changed(snapshot)
	return nil
}

// IsLoggedIn reports whether the principal has a live session. It does not
// touch the session's timer.
func (r *Registry) IsLoggedIn(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[username]
	return ok
}

// ResolveUser returns the principal bound to conn and, as a side effect,
// touches the session. Every authenticated request goes through here, so
// activity keeps the session alive. A false return means the session is
// gone; callers treat that as a legitimate outcome, not a fault.
func (r *Registry) ResolveUser(conn Conn) (model.User, bool) {
	if conn == nil {
		return model.User{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	username, ok := r.conns[conn.ID()]
	if !ok {
		return model.User{}, false
	}
	sess := r.sessions[username]
	r.touchLocked(sess)
	return sess.user, true
}

// ResolveConnection returns the connection a principal is bound to, with the
// same touch side effect as ResolveUser.
func (r *Registry) ResolveConnection(username string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[username]
	if !ok {
		return nil, false
	}
	r.touchLocked(sess)
	return sess.conn, true
}

// Roster returns a snapshot of the connected-client projections.
func (r *Registry) Roster() []model.ConnectedClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ---- internals (all *Locked helpers require r.mu held) ----

// touchLocked cancels the session's timer and arms a fresh one, postponing
// expiry by the full idle window.
func (r *Registry) touchLocked(sess *session) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
	r.armLocked(sess)
}

// armLocked schedules expiry one idle window from now. A non-positive idle
// window disables eviction entirely.
func (r *Registry) armLocked(sess *session) {
	sess.gen++
	if r.idle <= 0 {
		sess.timer = nil
		return
	}
	gen := sess.gen
	sess.expiresAt = r.sched.Now().Add(r.idle)
	sess.timer = r.sched.Schedule(r.idle, func() { r.expire(sess, gen) })
}

// expire is the timer callback. It runs on the scheduler's goroutine and
// races cancellation by design: a fire that lost to a logout or a re-login
// finds a different (or no) session under the username, and one that lost to
// a touch finds a newer generation. Either way it no-ops.
func (r *Registry) expire(sess *session, gen uint64) {
	r.mu.Lock()
	cur, ok := r.sessions[sess.user.Username]
	if !ok || cur != sess || sess.gen != gen {
		r.mu.Unlock()
		return
	}
	r.removeLocked(sess)
	snapshot := r.rosterLocked()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Evictions.Add(1)
	}
	slog.Info("session expired", "user", sess.user.Username, "idle", r.idle)

	r.sendNotice(sess.conn, sess.user.Username, ReasonExpired)
	r.changed(snapshot)
}

// removeLocked erases a session from all three structures together, keeping
// them mutually consistent.
func (r *Registry) removeLocked(sess *session) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
	delete(r.sessions, sess.user.Username)
	delete(r.conns, sess.conn.ID())
	for i, c := range r.roster {
		if c.Username == sess.user.Username {
			r.roster = append(r.roster[:i], r.roster[i+1:]...)
			break
		}
	}
}

func (r *Registry) rosterLocked() []model.ConnectedClient {
	snapshot := make([]model.ConnectedClient, len(r.roster))
	copy(snapshot, r.roster)
	return snapshot
}

// sendNotice pushes a forced-logout message. Fire-and-forget: a transport
// failure is logged and ignored.
func (r *Registry) sendNotice(conn Conn, username, reason string) {
	msg := &protocol.Message{ForcedLogout: &protocol.ForcedLogout{Username: username, Reason: reason}}
	if err := conn.Send(msg); err != nil {
		slog.Debug("forced-logout notice not delivered", "user", username, "err", err)
	}
	if r.metrics != nil {
		r.metrics.ForcedNotices.Add(1)
	}
}

func (r *Registry) changed(snapshot []model.ConnectedClient) {
	if r.OnChange != nil {
		r.OnChange(snapshot)
	}
}

func (r *Registry) countFailedLogin() {
	if r.metrics != nil {
		r.metrics.FailedLogins.Add(1)
	}
}
