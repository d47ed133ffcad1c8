package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/etamarw/roster/pkg/model"
)

// MemoryStore provides an in-memory Store implementation for tests.
// It mirrors SQLite behavior for validation and error handling. Credentials
// are kept as plaintext; tests do not need real hashing.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID int64
	nextRegID  int64

	usersByName map[string]*memoryUser
	regsByName  map[string]*model.Registration

	// Err, when set, is returned by every operation. Lets tests simulate an
	// unavailable backing store.
	Err error
}

type memoryUser struct {
	user       model.User
	credential string
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return &MemoryStore{
		now:         func() time.Time { return time.Now().UTC() },
		nextUserID:  1,
		nextRegID:   1,
		usersByName: make(map[string]*memoryUser),
		regsByName:  make(map[string]*model.Registration),
	}
}

// Store returns the store itself; MemoryStore is its own provider.
func (s *MemoryStore) Store() Store {
	return s
}

// Tx returns a transactional view. Commit and Rollback are no-ops; tests
// that need real rollback semantics use the SQLite store.
func (s *MemoryStore) Tx(_ context.Context) (StoreTx, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &memoryTx{s}, nil
}

type memoryTx struct {
	*MemoryStore
}

func (t *memoryTx) Commit() error   { return nil }
func (t *memoryTx) Rollback() error { return nil }

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateUser stores a principal and assigns an ID.
func (s *MemoryStore) CreateUser(u *model.User, plaintext string) error {
	if s.Err != nil {
		return s.Err
	}
	if err := model.ValidateUsername(u.Username); err != nil {
		return fmt.Errorf("datastore: create user: %w", err)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("datastore: create user: %w", model.ErrInvalidRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByName[u.Username]; exists {
		return fmt.Errorf("datastore: create user: constraint failed: UNIQUE constraint failed: users.username")
	}
	u.ID = s.nextUserID
	u.CreatedAt = s.now()
	s.nextUserID++
	s.usersByName[u.Username] = &memoryUser{user: *u, credential: plaintext}
	return nil
}

// GetUserByUsername retrieves a user by username.
func (s *MemoryStore) GetUserByUsername(username string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.Username == username })
}

// GetUserByEmail retrieves a user by email address.
func (s *MemoryStore) GetUserByEmail(email string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.Email == email })
}

// GetUserByPhone retrieves a user by phone number.
func (s *MemoryStore) GetUserByPhone(phone string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.Phone == phone })
}

// GetAreaManager retrieves the area manager responsible for an area.
func (s *MemoryStore) GetAreaManager(area string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool {
		return u.Role == model.RoleAreaManager && u.Area == area
	})
}

func (s *MemoryStore) findUser(match func(*model.User) bool) (*model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, mu := range s.usersByName {
		if match(&mu.user) {
			copyUser := mu.user
			return &copyUser, nil
		}
	}
	return nil, nil
}

// ListUsersByRole returns all users holding a role, ordered by ID.
func (s *MemoryStore) ListUsersByRole(role model.Role) ([]model.User, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("datastore: list users: %w", model.ErrInvalidRole)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []model.User
	for _, mu := range s.usersByName {
		if mu.user.Role == role {
			users = append(users, mu.user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// UpdateUser updates the mutable fields of a principal.
func (s *MemoryStore) UpdateUser(u *model.User) error {
	if s.Err != nil {
		return s.Err
	}
	if !u.Role.Valid() {
		return fmt.Errorf("datastore: update user: %w", model.ErrInvalidRole)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.usersByName[u.Username]
	if !ok {
		return ErrNotExist
	}
	mu.user.Role = u.Role
	mu.user.Email = u.Email
	mu.user.Phone = u.Phone
	mu.user.Area = u.Area
	return nil
}

// CheckCredential reports whether plaintext matches the stored credential.
func (s *MemoryStore) CheckCredential(username, plaintext string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	mu, ok := s.usersByName[username]
	if !ok {
		return false, nil
	}
	return mu.credential == plaintext, nil
}

// CreateRegistration stores a pending registration request.
func (s *MemoryStore) CreateRegistration(reg *model.Registration) error {
	if s.Err != nil {
		return s.Err
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("datastore: create registration: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.regsByName[reg.Username]; exists {
		return fmt.Errorf("datastore: create registration: constraint failed: UNIQUE constraint failed: registrations.username")
	}
	reg.ID = s.nextRegID
	reg.CreatedAt = s.now()
	s.nextRegID++
	copyReg := *reg
	s.regsByName[reg.Username] = &copyReg
	return nil
}

// GetRegistration retrieves a pending request by username.
func (s *MemoryStore) GetRegistration(username string) (*model.Registration, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.regsByName[username]
	if !ok {
		return nil, nil
	}
	copyReg := *reg
	return &copyReg, nil
}

// ListRegistrations returns pending requests for an area (all when empty).
func (s *MemoryStore) ListRegistrations(area string) ([]model.Registration, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var regs []model.Registration
	for _, reg := range s.regsByName {
		if area == "" || reg.Area == area {
			regs = append(regs, *reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })
	return regs, nil
}

// DeleteRegistration removes a pending request by username.
func (s *MemoryStore) DeleteRegistration(username string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regsByName[username]; !ok {
		return ErrNotExist
	}
	delete(s.regsByName, username)
	return nil
}
