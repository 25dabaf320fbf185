package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	login         TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
)`

// SQLiteStore keeps credentials in a SQLite file so accounts survive a
// restart. Messages and presence stay in memory.
type SQLiteStore struct {
	conn *sql.DB
	cost int
}

// OpenSQLite opens (and if needed creates) the credential database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY on first-login inserts.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create credentials schema: %w", err)
	}

	return &SQLiteStore{conn: conn, cost: bcrypt.DefaultCost}, nil
}

// SetCost overrides the bcrypt cost used for new registrations.
func (s *SQLiteStore) SetCost(cost int) {
	s.cost = cost
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Authenticate implements Authenticator.
func (s *SQLiteStore) Authenticate(ctx context.Context, login, password string) (bool, error) {
	if login == "" || password == "" {
		return false, ErrEmptyCredentials
	}

	var hash string
	err := s.conn.QueryRowContext(ctx,
		"SELECT password_hash FROM credentials WHERE login = ?", login).Scan(&hash)
	switch {
	case err == nil:
		return matches(hash, password), nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("query credentials: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	if err := s.Put(ctx, login, string(hashed)); err != nil {
		return false, err
	}
	return true, nil
}

// Put stores a pre-hashed credential, replacing any existing one.
func (s *SQLiteStore) Put(ctx context.Context, login, hash string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO credentials (login, password_hash, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(login) DO UPDATE SET password_hash = excluded.password_hash`,
		login, hash, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store credentials for %s: %w", login, err)
	}
	return nil
}
