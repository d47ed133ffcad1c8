// Package model defines the core domain types for roster.
package model

import (
	"errors"
	"fmt"
	"time"
)

const MaxUsernameLength = 32

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters, underscores, or hyphens")
var ErrInvalidRole = errors.New("invalid role")
var ErrMissingContact = errors.New("registration must carry at least one contact field")

// User represents a registered principal. The credential hash never leaves
// the datastore; lookups return this record without it.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Area      string    `json:"area"`
	CreatedAt time.Time `json:"created_at"`
}

// Registration is a pending signup request awaiting manager approval.
type Registration struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Area          string    `json:"area"`
	Subscribe     bool      `json:"subscribe"` // subscriber plan requested instead of one-off customer
	CreditCard    string    `json:"credit_card"`
	MonthlyCharge float64   `json:"monthly_charge"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConnectedClient is a presentation-only projection of a live session.
// It exists exactly as long as the session it mirrors.
type ConnectedClient struct {
	Addr     string `json:"addr"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// FetchBy selects the lookup key for user queries.
type FetchBy string

const (
	FetchByUsername    FetchBy = "username"
	FetchByEmail       FetchBy = "email"
	FetchByPhone       FetchBy = "phone"
	FetchByRole        FetchBy = "role"
	FetchByAreaManager FetchBy = "area_manager"
)

// ValidateUsername checks that a username is 1-32 ASCII alphanumeric, underscore,
// or hyphen characters. Returns nil on success or a descriptive error.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}

// Validate checks a registration request for required fields.
func (r *Registration) Validate() error {
	if err := ValidateUsername(r.Username); err != nil {
		return err
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	return nil
}
