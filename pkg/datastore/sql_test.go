package datastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etamarw/roster/pkg/model"
)

func openTestProvider(t *testing.T) *SQLProvider {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestCreateAndFetchUser(t *testing.T) {
	st := openTestProvider(t).Store()

	u := &model.User{Username: "alice", Role: model.RoleCustomer, Email: "alice@example.com", Phone: "0501112233", Area: "north"}
	require.NoError(t, st.CreateUser(u, "pw1"))
	assert.NotZero(t, u.ID)

	got, err := st.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, model.RoleCustomer, got.Role)
	assert.Equal(t, "alice@example.com", got.Email)

	got, err = st.GetUserByEmail("alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)

	got, err = st.GetUserByPhone("0501112233")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)

	got, err = st.GetUserByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateUserRejectsDuplicatesAndBadInput(t *testing.T) {
	st := openTestProvider(t).Store()

	require.NoError(t, st.CreateUser(&model.User{Username: "bob", Role: model.RoleCustomer}, "pw"))
	assert.Error(t, st.CreateUser(&model.User{Username: "bob", Role: model.RoleCustomer}, "pw"))
	assert.ErrorIs(t, st.CreateUser(&model.User{Username: "", Role: model.RoleCustomer}, "pw"), model.ErrUsernameEmpty)
	assert.ErrorIs(t, st.CreateUser(&model.User{Username: "carol", Role: model.Role(99)}, "pw"), model.ErrInvalidRole)
}

func TestCheckCredential(t *testing.T) {
	st := openTestProvider(t).Store()
	require.NoError(t, st.CreateUser(&model.User{Username: "alice", Role: model.RoleCustomer}, "pw1"))

	ok, err := st.CheckCredential("alice", "pw1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.CheckCredential("alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = st.CheckCredential("nobody", "pw1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListUsersByRoleAndAreaManager(t *testing.T) {
	st := openTestProvider(t).Store()
	require.NoError(t, st.CreateUser(&model.User{Username: "m1", Role: model.RoleAreaManager, Area: "north"}, "pw"))
	require.NoError(t, st.CreateUser(&model.User{Username: "m2", Role: model.RoleAreaManager, Area: "south"}, "pw"))
	require.NoError(t, st.CreateUser(&model.User{Username: "c1", Role: model.RoleCustomer}, "pw"))

	managers, err := st.ListUsersByRole(model.RoleAreaManager)
	require.NoError(t, err)
	require.Len(t, managers, 2)
	assert.Equal(t, "m1", managers[0].Username)

	north, err := st.GetAreaManager("north")
	require.NoError(t, err)
	require.NotNil(t, north)
	assert.Equal(t, "m1", north.Username)

	missing, err := st.GetAreaManager("east")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateUser(t *testing.T) {
	st := openTestProvider(t).Store()
	require.NoError(t, st.CreateUser(&model.User{Username: "alice", Role: model.RoleRegistered}, "pw"))

	err := st.UpdateUser(&model.User{Username: "alice", Role: model.RoleCustomer, Email: "new@example.com"})
	require.NoError(t, err)

	got, err := st.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, model.RoleCustomer, got.Role)
	assert.Equal(t, "new@example.com", got.Email)

	assert.ErrorIs(t, st.UpdateUser(&model.User{Username: "nobody", Role: model.RoleCustomer}), ErrNotExist)
}

func TestRegistrationLifecycle(t *testing.T) {
	st := openTestProvider(t).Store()

	reg := &model.Registration{Username: "dave", Email: "dave@example.com", Area: "north", Subscribe: true, MonthlyCharge: 49.90}
	require.NoError(t, st.CreateRegistration(reg))
	assert.NotZero(t, reg.ID)

	regs, err := st.ListRegistrations("north")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "dave", regs[0].Username)
	assert.True(t, regs[0].Subscribe)
	assert.InDelta(t, 49.90, regs[0].MonthlyCharge, 0.001)

	regs, err = st.ListRegistrations("south")
	require.NoError(t, err)
	assert.Empty(t, regs)

	require.NoError(t, st.DeleteRegistration("dave"))
	assert.ErrorIs(t, st.DeleteRegistration("dave"), ErrNotExist)
}

func TestTxCommitAndRollback(t *testing.T) {
	p := openTestProvider(t)
	ctx := context.Background()

	tx, err := p.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateUser(&model.User{Username: "alice", Role: model.RoleCustomer}, "pw"))
	require.NoError(t, tx.Commit())

	got, err := p.Store().GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, got)

	tx, err = p.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateUser(&model.User{Username: "bob", Role: model.RoleCustomer}, "pw"))
	require.NoError(t, tx.Rollback())

	got, err = p.Store().GetUserByUsername("bob")
	require.NoError(t, err)
	assert.Nil(t, got)
}
