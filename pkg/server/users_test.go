package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etamarw/roster/pkg/datastore"
	"github.com/etamarw/roster/pkg/model"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) Notify(message, email, phone string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, message+"|"+email+"|"+phone)
	return n.err
}

func newTestUsers(t *testing.T) (*UserService, *datastore.MemoryStore, *recordingNotifier) {
	t.Helper()
	mem := datastore.NewMemory()
	st := mem.Store()
	require.NoError(t, st.CreateUser(&model.User{Username: "alice", Role: model.RoleCustomer, Email: "alice@example.com", Phone: "050-1111111"}, "pw"))
	require.NoError(t, st.CreateUser(&model.User{Username: "bob", Role: model.RoleAreaManager, Area: "north"}, "pw"))
	require.NoError(t, st.CreateUser(&model.User{Username: "carol", Role: model.RoleRegistered, Email: "carol@example.com"}, "pw"))
	notifier := &recordingNotifier{}
	return NewUserService(mem, notifier, NewMetrics()), mem, notifier
}

func TestFetchUser(t *testing.T) {
	svc, _, _ := newTestUsers(t)

	users, err := svc.FetchUser(model.FetchByUsername, "alice")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	users, err = svc.FetchUser(model.FetchByEmail, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	users, err = svc.FetchUser(model.FetchByPhone, "050-1111111")
	require.NoError(t, err)
	require.Len(t, users, 1)

	users, err = svc.FetchUser(model.FetchByRole, "customer")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	users, err = svc.FetchUser(model.FetchByAreaManager, "north")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)
}

func TestFetchUserErrors(t *testing.T) {
	svc, mem, _ := newTestUsers(t)

	_, err := svc.FetchUser(model.FetchByUsername, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.FetchUser(model.FetchBy("shoe_size"), "42")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.FetchUser(model.FetchByUsername, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.FetchUser(model.FetchByAreaManager, "atlantis")
	assert.ErrorIs(t, err, ErrNotFound)

	mem.Err = errors.New("datastore offline")
	_, err = svc.FetchUser(model.FetchByUsername, "alice")
	assert.ErrorIs(t, err, ErrNotFound, "store failures fail closed")
}

func TestCreateRegistration(t *testing.T) {
	svc, mem, _ := newTestUsers(t)

	err := svc.CreateRegistration(model.Registration{Username: "carol", Email: "carol@example.com", Area: "north"})
	require.NoError(t, err)

	regs, err := mem.Store().ListRegistrations("north")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "carol", regs[0].Username)

	// Missing contact details are rejected before touching the store.
	err = svc.CreateRegistration(model.Registration{Username: "dave"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = svc.CreateRegistration(model.Registration{Username: "bad name!", Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegistrationListFiltersByArea(t *testing.T) {
	svc, _, _ := newTestUsers(t)

	require.NoError(t, svc.CreateRegistration(model.Registration{Username: "carol", Email: "c@example.com", Area: "north"}))
	require.NoError(t, svc.CreateRegistration(model.Registration{Username: "dave", Email: "d@example.com", Area: "south"}))

	regs, err := svc.RegistrationList("north")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "carol", regs[0].Username)

	regs, err = svc.RegistrationList("")
	require.NoError(t, err)
	assert.Len(t, regs, 2)
}

func TestAcceptRegistration(t *testing.T) {
	svc, mem, notifier := newTestUsers(t)

	require.NoError(t, svc.CreateRegistration(model.Registration{
		Username: "carol", Email: "carol@new.example.com", Phone: "050-2222222",
		Area: "north", Subscribe: true, CreditCard: "4580-0000", MonthlyCharge: 25,
	}))

	require.NoError(t, svc.AcceptRegistration(context.Background(), "carol"))

	u, err := mem.Store().GetUserByUsername("carol")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, model.RoleSubscriber, u.Role)
	assert.Equal(t, "carol@new.example.com", u.Email)
	assert.Equal(t, "050-2222222", u.Phone)
	assert.Equal(t, "north", u.Area)

	// Pending record is consumed.
	regs, err := mem.Store().ListRegistrations("")
	require.NoError(t, err)
	assert.Empty(t, regs)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.calls, 1)
	assert.Contains(t, notifier.calls[0], "accepted")
	assert.Contains(t, notifier.calls[0], "carol@new.example.com")
}

func TestAcceptRegistrationOneOffCustomer(t *testing.T) {
	svc, mem, _ := newTestUsers(t)

	require.NoError(t, svc.CreateRegistration(model.Registration{
		Username: "carol", Email: "carol@example.com", Subscribe: false,
	}))
	require.NoError(t, svc.AcceptRegistration(context.Background(), "carol"))

	u, err := mem.Store().GetUserByUsername("carol")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, model.RoleCustomer, u.Role)
}

func TestAcceptRegistrationKeepsElevatedRole(t *testing.T) {
	svc, mem, _ := newTestUsers(t)

	// A manager filing a fresh registration keeps their stored role.
	require.NoError(t, svc.CreateRegistration(model.Registration{
		Username: "bob", Email: "bob@example.com", Subscribe: true,
	}))
	require.NoError(t, svc.AcceptRegistration(context.Background(), "bob"))

	u, err := mem.Store().GetUserByUsername("bob")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, model.RoleAreaManager, u.Role)
}

func TestAcceptRegistrationErrors(t *testing.T) {
	svc, _, notifier := newTestUsers(t)

	assert.ErrorIs(t, svc.AcceptRegistration(context.Background(), ""), ErrInvalidInput)

	// No pending registration filed.
	assert.ErrorIs(t, svc.AcceptRegistration(context.Background(), "carol"), ErrNotFound)

	// Registration without a matching account.
	require.NoError(t, svc.CreateRegistration(model.Registration{Username: "ghost", Email: "g@example.com"}))
	assert.ErrorIs(t, svc.AcceptRegistration(context.Background(), "ghost"), ErrNotFound)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Empty(t, notifier.calls, "failed accepts must not notify")
}

func TestAcceptRegistrationNotifyFailureIsNotFatal(t *testing.T) {
	svc, _, notifier := newTestUsers(t)
	notifier.err = errors.New("smtp down")

	require.NoError(t, svc.CreateRegistration(model.Registration{Username: "carol", Email: "c@example.com"}))
	assert.NoError(t, svc.AcceptRegistration(context.Background(), "carol"))
}

func TestUpdateUser(t *testing.T) {
	svc, mem, _ := newTestUsers(t)

	err := svc.UpdateUser(model.User{Username: "alice", Role: model.RoleSubscriber, Email: "new@example.com"})
	require.NoError(t, err)

	u, err := mem.Store().GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, model.RoleSubscriber, u.Role)
	assert.Equal(t, "new@example.com", u.Email)

	assert.ErrorIs(t, svc.UpdateUser(model.User{Username: "nobody", Role: model.RoleCustomer}), ErrNotFound)
	assert.ErrorIs(t, svc.UpdateUser(model.User{Username: "alice", Role: model.Role(99)}), ErrInvalidInput)
}
