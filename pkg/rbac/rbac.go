// Package rbac provides role-based access control checks.
package rbac

import "github.com/etamarw/roster/pkg/model"

// permissionMatrix maps roles to their allowed permissions.
var permissionMatrix = map[model.Role]map[model.Permission]bool{
	model.RoleAdmin: {
		model.PermFetchUsers:          true,
		model.PermUpdateUsers:         true,
		model.PermManageRegistrations: true,
		model.PermViewRoster:          true,
	},
	model.RoleAreaManager: {
		model.PermFetchUsers:          true,
		model.PermManageRegistrations: true,
		model.PermViewRoster:          true,
	},
	model.RoleSubscriber: {
		// No administrative permissions
	},
	model.RoleCustomer: {
		// No administrative permissions
	},
	model.RoleRegistered: {
		// No administrative permissions
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role model.Role, perm model.Permission) bool {
	perms, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	return perms[perm]
}

// RequirePermission returns an error message if the role lacks the permission, or empty string if allowed.
func RequirePermission(role model.Role, perm model.Permission) string {
	if HasPermission(role, perm) {
		return ""
	}
	return "permission denied: " + permName(perm) + " requires higher role"
}

func permName(p model.Permission) string {
	switch p {
	case model.PermFetchUsers:
		return "fetch_users"
	case model.PermUpdateUsers:
		return "update_users"
	case model.PermManageRegistrations:
		return "manage_registrations"
	case model.PermViewRoster:
		return "view_roster"
	default:
		return "unknown"
	}
}
