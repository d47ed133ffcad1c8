package datastore

import (
	"context"
	"errors"

	"github.com/etamarw/roster/pkg/model"
)

// ErrNotExist is returned by write operations that target a record which is
// not present (update of an unknown user, delete of an unknown registration).
var ErrNotExist = errors.New("datastore: record does not exist")

// Provider hands out Store views, either non-transactional or bound to a
// transaction. The registration-acceptance flow is the only multi-statement
// writer and goes through Tx.
type Provider interface {
	Store() Store
	Tx(ctx context.Context) (StoreTx, error)
}

// StoreTx is a Store scoped to a single transaction.
type StoreTx interface {
	Store
	Commit() error
	Rollback() error
}

// Store defines the persistence interface for principals and registration
// requests. Implementations include the default SQLite store and an
// in-memory store for tests. Get* lookups return (nil, nil) when no record
// matches.
type Store interface {
	UserReadProvider
	UserWriteProvider
	CredentialProvider
	RegistrationProvider

	Close() error
}

type UserReadProvider interface {
	GetUserByUsername(username string) (*model.User, error)
	GetUserByEmail(email string) (*model.User, error)
	GetUserByPhone(phone string) (*model.User, error)
	ListUsersByRole(role model.Role) ([]model.User, error)
	GetAreaManager(area string) (*model.User, error)
}

type UserWriteProvider interface {
	CreateUser(u *model.User, plaintext string) error
	UpdateUser(u *model.User) error
}

// CredentialProvider answers credential checks. The session registry only
// ever consumes the boolean outcome; hashing stays behind this interface.
type CredentialProvider interface {
	CheckCredential(username, plaintext string) (bool, error)
}

type RegistrationProvider interface {
	CreateRegistration(reg *model.Registration) error
	GetRegistration(username string) (*model.Registration, error)
	ListRegistrations(area string) ([]model.Registration, error)
	DeleteRegistration(username string) error
}

// Compile-time checks.
var _ Provider = (*SQLProvider)(nil)
var _ Provider = (*MemoryStore)(nil)
