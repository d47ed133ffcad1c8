package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/etamarw/roster/pkg/model"
)

func TestPermissionMatrix(t *testing.T) {
	assert.True(t, HasPermission(model.RoleAdmin, model.PermFetchUsers))
	assert.True(t, HasPermission(model.RoleAdmin, model.PermUpdateUsers))
	assert.True(t, HasPermission(model.RoleAdmin, model.PermManageRegistrations))
	assert.True(t, HasPermission(model.RoleAdmin, model.PermViewRoster))

	assert.True(t, HasPermission(model.RoleAreaManager, model.PermFetchUsers))
	assert.True(t, HasPermission(model.RoleAreaManager, model.PermManageRegistrations))
	assert.True(t, HasPermission(model.RoleAreaManager, model.PermViewRoster))
	assert.False(t, HasPermission(model.RoleAreaManager, model.PermUpdateUsers),
		"only admins edit user records")

	for _, role := range []model.Role{model.RoleRegistered, model.RoleCustomer, model.RoleSubscriber} {
		for _, perm := range []model.Permission{
			model.PermFetchUsers, model.PermUpdateUsers,
			model.PermManageRegistrations, model.PermViewRoster,
		} {
			assert.False(t, HasPermission(role, perm), "role %v must not hold %v", role, perm)
		}
	}

	assert.False(t, HasPermission(model.Role(99), model.PermFetchUsers))
}

func TestRequirePermission(t *testing.T) {
	assert.Empty(t, RequirePermission(model.RoleAdmin, model.PermUpdateUsers))

	msg := RequirePermission(model.RoleCustomer, model.PermViewRoster)
	assert.Contains(t, msg, "permission denied")
	assert.Contains(t, msg, "view_roster")
}
