// Package datastore provides SQLite-backed persistence for principals and
// registration requests.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/etamarw/roster/pkg/crypto"
	"github.com/etamarw/roster/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// dbConn is the subset of *sql.DB / *sql.Tx the store needs.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLProvider opens Store views over a shared SQLite handle.
type SQLProvider struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(dbPath string) (*SQLProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	p := &SQLProvider{db: db}
	if err := p.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return p, nil
}

// Store returns a non-transactional view.
func (p *SQLProvider) Store() Store {
	return &sqlStore{conn: p.db, db: p.db}
}

// Tx begins a transaction and returns a Store bound to it.
func (p *SQLProvider) Tx(ctx context.Context) (StoreTx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("datastore: begin tx: %w", err)
	}
	return &sqlTxStore{sqlStore: sqlStore{conn: tx}, tx: tx}, nil
}

// Close closes the underlying database handle.
func (p *SQLProvider) Close() error {
	return p.db.Close()
}

type sqlStore struct {
	conn dbConn
	db   *sql.DB // nil when the view is transactional
}

// Close closes the shared handle for non-transactional views and is a no-op
// inside a transaction.
func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type sqlTxStore struct {
	sqlStore
	tx *sql.Tx
}

func (s *sqlTxStore) Commit() error   { return s.tx.Commit() }
func (s *sqlTxStore) Rollback() error { return s.tx.Rollback() }

// ---- Migrations ----

func (p *SQLProvider) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		username   TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		credential TEXT    NOT NULL,
		role       INTEGER NOT NULL DEFAULT 0 CHECK(role >= 0 AND role <= 4),
		email      TEXT    NOT NULL DEFAULT '',
		phone      TEXT    NOT NULL DEFAULT '',
		area       TEXT    NOT NULL DEFAULT '',
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS registrations (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		username       TEXT    NOT NULL UNIQUE,
		email          TEXT    NOT NULL DEFAULT '',
		phone          TEXT    NOT NULL DEFAULT '',
		area           TEXT    NOT NULL DEFAULT '',
		subscribe      INTEGER NOT NULL DEFAULT 0,
		credit_card    TEXT    NOT NULL DEFAULT '',
		monthly_charge REAL    NOT NULL DEFAULT 0,
		created_at     TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	if err := p.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	current, err := p.schemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{version: 1, statements: []string{schema}},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := p.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate to v%d: %w", m.version, err)
			}
		}
		if _, err := p.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", m.version); err != nil {
			return fmt.Errorf("datastore: record version v%d: %w", m.version, err)
		}
	}
	return nil
}

func (p *SQLProvider) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := p.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (p *SQLProvider) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := p.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Users ----

const userColumns = "id, username, role, email, phone, area, created_at"

func scanUser(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	var roleInt int
	var createdAt string
	err := row.Scan(&u.ID, &u.Username, &roleInt, &u.Email, &u.Phone, &u.Area, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: scan user: %w", err)
	}
	u.Role = model.Role(roleInt)
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("datastore: scan user: %w", err)
	}
	u.CreatedAt = parsed
	return u, nil
}

// CreateUser inserts a principal with a freshly hashed credential and fills
// in the assigned ID.
func (s *sqlStore) CreateUser(u *model.User, plaintext string) error {
	if err := model.ValidateUsername(u.Username); err != nil {
		return fmt.Errorf("datastore: create user: %w", err)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("datastore: create user: %w", model.ErrInvalidRole)
	}
	hash, err := crypto.HashCredential(plaintext)
	if err != nil {
		return fmt.Errorf("datastore: create user: %w", err)
	}
	res, err := s.conn.ExecContext(context.Background(),
		"INSERT INTO users (username, credential, role, email, phone, area) VALUES (?, ?, ?, ?, ?, ?)",
		u.Username, hash, int(u.Role), u.Email, u.Phone, u.Area)
	if err != nil {
		return fmt.Errorf("datastore: create user: %w", err)
	}
	u.ID, _ = res.LastInsertId()
	u.CreatedAt = time.Now().UTC()
	return nil
}

// GetUserByUsername retrieves a user by username.
func (s *sqlStore) GetUserByUsername(username string) (*model.User, error) {
	row := s.conn.QueryRowContext(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email address.
func (s *sqlStore) GetUserByEmail(email string) (*model.User, error) {
	row := s.conn.QueryRowContext(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

// GetUserByPhone retrieves a user by phone number.
func (s *sqlStore) GetUserByPhone(phone string) (*model.User, error) {
	row := s.conn.QueryRowContext(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE phone = ?", phone)
	return scanUser(row)
}

// GetAreaManager retrieves the area manager responsible for an area.
func (s *sqlStore) GetAreaManager(area string) (*model.User, error) {
	row := s.conn.QueryRowContext(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE role = ? AND area = ?", int(model.RoleAreaManager), area)
	return scanUser(row)
}

// ListUsersByRole returns all users holding a role.
func (s *sqlStore) ListUsersByRole(role model.Role) ([]model.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("datastore: list users: %w", model.ErrInvalidRole)
	}
	rows, err := s.conn.QueryContext(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY id", int(role))
	if err != nil {
		return nil, fmt.Errorf("datastore: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var roleInt int
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &roleInt, &u.Email, &u.Phone, &u.Area, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		u.Role = model.Role(roleInt)
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan user: %w", err)
		}
		u.CreatedAt = parsed
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser updates the mutable fields of a principal (role and contact
// info; the username and credential are untouched). Returns ErrNotExist when
// no such user is present.
func (s *sqlStore) UpdateUser(u *model.User) error {
	if !u.Role.Valid() {
		return fmt.Errorf("datastore: update user: %w", model.ErrInvalidRole)
	}
	res, err := s.conn.ExecContext(context.Background(),
		"UPDATE users SET role = ?, email = ?, phone = ?, area = ? WHERE username = ?",
		int(u.Role), u.Email, u.Phone, u.Area, u.Username)
	if err != nil {
		return fmt.Errorf("datastore: update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("datastore: update user: %w", err)
	}
	if affected == 0 {
		return ErrNotExist
	}
	return nil
}

// CheckCredential reports whether plaintext matches the stored credential.
// An unknown username checks false without error.
func (s *sqlStore) CheckCredential(username, plaintext string) (bool, error) {
	var stored string
	err := s.conn.QueryRowContext(context.Background(),
		"SELECT credential FROM users WHERE username = ?", username).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("datastore: check credential: %w", err)
	}
	ok, err := crypto.VerifyCredential(plaintext, stored)
	if err != nil {
		return false, fmt.Errorf("datastore: check credential: %w", err)
	}
	return ok, nil
}

// ---- Registrations ----

// CreateRegistration inserts a pending registration request.
func (s *sqlStore) CreateRegistration(reg *model.Registration) error {
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("datastore: create registration: %w", err)
	}
	subscribeInt := 0
	if reg.Subscribe {
		subscribeInt = 1
	}
	res, err := s.conn.ExecContext(context.Background(),
		"INSERT INTO registrations (username, email, phone, area, subscribe, credit_card, monthly_charge) VALUES (?, ?, ?, ?, ?, ?, ?)",
		reg.Username, reg.Email, reg.Phone, reg.Area, subscribeInt, reg.CreditCard, reg.MonthlyCharge)
	if err != nil {
		return fmt.Errorf("datastore: create registration: %w", err)
	}
	reg.ID, _ = res.LastInsertId()
	reg.CreatedAt = time.Now().UTC()
	return nil
}

// GetRegistration retrieves a pending request by username.
func (s *sqlStore) GetRegistration(username string) (*model.Registration, error) {
	reg := &model.Registration{}
	var subscribeInt int
	var createdAt string
	err := s.conn.QueryRowContext(context.Background(),
		"SELECT id, username, email, phone, area, subscribe, credit_card, monthly_charge, created_at FROM registrations WHERE username = ?",
		username).Scan(&reg.ID, &reg.Username, &reg.Email, &reg.Phone, &reg.Area,
		&subscribeInt, &reg.CreditCard, &reg.MonthlyCharge, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get registration: %w", err)
	}
	reg.Subscribe = subscribeInt != 0
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("datastore: get registration: %w", err)
	}
	reg.CreatedAt = parsed
	return reg, nil
}

// ListRegistrations returns pending registration requests for an area, or
// all of them when area is empty.
func (s *sqlStore) ListRegistrations(area string) ([]model.Registration, error) {
	query := "SELECT id, username, email, phone, area, subscribe, credit_card, monthly_charge, created_at FROM registrations"
	args := []any{}
	if area != "" {
		query += " WHERE area = ?"
		args = append(args, area)
	}
	query += " ORDER BY id"

	rows, err := s.conn.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("datastore: list registrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		var subscribeInt int
		var createdAt string
		if err := rows.Scan(&reg.ID, &reg.Username, &reg.Email, &reg.Phone, &reg.Area,
			&subscribeInt, &reg.CreditCard, &reg.MonthlyCharge, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan registration: %w", err)
		}
		reg.Subscribe = subscribeInt != 0
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan registration: %w", err)
		}
		reg.CreatedAt = parsed
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// DeleteRegistration removes a pending request by username. Returns
// ErrNotExist when there is none.
func (s *sqlStore) DeleteRegistration(username string) error {
	res, err := s.conn.ExecContext(context.Background(),
		"DELETE FROM registrations WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("datastore: delete registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("datastore: delete registration: %w", err)
	}
	if affected == 0 {
		return ErrNotExist
	}
	return nil
}
