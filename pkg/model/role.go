package model

// Role represents a principal's account level.
type Role int

const (
	RoleRegistered  Role = iota // signed up, registration not yet accepted
	RoleCustomer                // accepted, pay-per-use
	RoleSubscriber              // accepted, monthly subscription
	RoleAreaManager             // manages registrations and users for an area
	RoleAdmin                   // full control
)

func (r Role) String() string {
	switch r {
	case RoleRegistered:
		return "registered"
	case RoleCustomer:
		return "customer"
	case RoleSubscriber:
		return "subscriber"
	case RoleAreaManager:
		return "area_manager"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole converts a string to a Role. Unrecognised values map to RoleRegistered.
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "area_manager":
		return RoleAreaManager
	case "subscriber":
		return RoleSubscriber
	case "customer":
		return RoleCustomer
	default:
		return RoleRegistered
	}
}

// Valid returns true if the role is a recognised value.
func (r Role) Valid() bool {
	return r >= RoleRegistered && r <= RoleAdmin
}

// Permission represents a specific action that can be checked against a role.
type Permission int

const (
	PermFetchUsers          Permission = iota // look up other users' records
	PermUpdateUsers                           // edit user records
	PermManageRegistrations                   // list/accept pending registrations
	PermViewRoster                            // view the connected-client roster
)
