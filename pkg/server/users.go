package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/etamarw/roster/pkg/datastore"
	"github.com/etamarw/roster/pkg/model"
	"github.com/etamarw/roster/pkg/notify"
)

// UserService wraps the credential store's CRUD surface with tagged results.
// No concurrency coordination happens here beyond what the store already
// guarantees; the session registry is the only stateful component.
//
// Store failures surface as ErrNotFound: a conservative fail-closed policy
// that treats "storage unavailable" the same as "no such record".
type UserService struct {
	provider datastore.Provider
	notifier notify.Notifier
	metrics  *Metrics // optional
}

// NewUserService creates a user service. A nil notifier falls back to
// logging notifications.
func NewUserService(provider datastore.Provider, notifier notify.Notifier, metrics *Metrics) *UserService {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &UserService{provider: provider, notifier: notifier, metrics: metrics}
}

// FetchUser looks up users by the given key. Role lookups return every
// matching user; the other keys return at most one.
func (s *UserService) FetchUser(by model.FetchBy, argument string) ([]model.User, error) {
	if argument == "" {
		return nil, ErrInvalidInput
	}
	st := s.provider.Store()

	var (
		one   *model.User
		users []model.User
		err   error
	)
	switch by {
	case model.FetchByUsername:
		one, err = st.GetUserByUsername(argument)
	case model.FetchByEmail:
		one, err = st.GetUserByEmail(argument)
	case model.FetchByPhone:
		one, err = st.GetUserByPhone(argument)
	case model.FetchByAreaManager:
		one, err = st.GetAreaManager(argument)
	case model.FetchByRole:
		users, err = st.ListUsersByRole(model.ParseRole(argument))
	default:
		return nil, ErrInvalidInput
	}
	if err != nil {
		slog.Error("user fetch failed", "by", by, "err", err)
		return nil, ErrNotFound
	}
	if one != nil {
		users = append(users, *one)
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return users, nil
}

// AcceptRegistration approves the pending registration for username: the
// principal's role is promoted (registered becomes customer or subscriber,
// per the request), contact fields are taken over, the pending record is
// deleted, and the applicant is notified. The store mutations run in one
// transaction; the notification is best-effort and happens after commit.
func (s *UserService) AcceptRegistration(ctx context.Context, username string) error {
	if username == "" {
		return ErrInvalidInput
	}

	tx, err := s.provider.Tx(ctx)
	if err != nil {
		slog.Error("registration accept: begin tx failed", "err", err)
		return ErrNotFound
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	reg, err := tx.GetRegistration(username)
	if err != nil {
		slog.Error("registration accept: lookup failed", "user", username, "err", err)
		return ErrNotFound
	}
	if reg == nil {
		return ErrNotFound
	}
	u, err := tx.GetUserByUsername(username)
	if err != nil {
		slog.Error("registration accept: user lookup failed", "user", username, "err", err)
		return ErrNotFound
	}
	if u == nil {
		return ErrNotFound
	}

	if u.Role == model.RoleRegistered {
		if reg.Subscribe {
			u.Role = model.RoleSubscriber
		} else {
			u.Role = model.RoleCustomer
		}
	}
	if reg.Email != "" {
		u.Email = reg.Email
	}
	if reg.Phone != "" {
		u.Phone = reg.Phone
	}
	if reg.Area != "" {
		u.Area = reg.Area
	}

	if err := tx.UpdateUser(u); err != nil {
		slog.Error("registration accept: update failed", "user", username, "err", err)
		return ErrNotFound
	}
	if err := tx.DeleteRegistration(username); err != nil {
		slog.Error("registration accept: delete failed", "user", username, "err", err)
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		slog.Error("registration accept: commit failed", "user", username, "err", err)
		return ErrNotFound
	}
	committed = true

	if s.metrics != nil {
		s.metrics.RegistrationsAccepted.Add(1)
	}
	slog.Info("registration accepted", "user", username, "role", u.Role)

	if err := s.notifier.Notify("Your registration request has been accepted!", u.Email, u.Phone); err != nil {
		slog.Warn("registration accept: notification failed", "user", username, "err", err)
	}
	return nil
}

// RegistrationList returns the pending registration requests for an area
// (all areas when empty).
func (s *UserService) RegistrationList(area string) ([]model.Registration, error) {
	regs, err := s.provider.Store().ListRegistrations(area)
	if err != nil {
		slog.Error("registration list failed", "area", area, "err", err)
		return nil, ErrNotFound
	}
	return regs, nil
}

// CreateRegistration files a pending registration request.
func (s *UserService) CreateRegistration(reg model.Registration) error {
	if err := reg.Validate(); err != nil {
		return ErrInvalidInput
	}
	if err := s.provider.Store().CreateRegistration(&reg); err != nil {
		slog.Error("registration create failed", "user", reg.Username, "err", err)
		return ErrNotFound
	}
	if s.metrics != nil {
		s.metrics.RegistrationsFiled.Add(1)
	}
	return nil
}

// UpdateUser updates a principal's mutable fields.
func (s *UserService) UpdateUser(u model.User) error {
	err := s.provider.Store().UpdateUser(&u)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrInvalidRole) {
		return ErrInvalidInput
	}
	if !errors.Is(err, datastore.ErrNotExist) {
		slog.Error("user update failed", "user", u.Username, "err", err)
	}
	return ErrNotFound
}
