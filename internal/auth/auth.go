// Package auth verifies login credentials for the relay. Unknown logins are
// registered on their first successful attempt; later attempts must present
// the same password.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyCredentials is returned when login or password is blank.
var ErrEmptyCredentials = errors.New("login and password are required")

// Authenticator checks a login/password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (bool, error)
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func matches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MemoryStore keeps credentials for the lifetime of the process.
type MemoryStore struct {
	mu     sync.Mutex
	hashes map[string]string
	cost   int
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hashes: make(map[string]string), cost: bcrypt.DefaultCost}
}

// NewMemoryStoreWithCost is NewMemoryStore with a custom bcrypt cost; tests
// use bcrypt.MinCost.
func NewMemoryStoreWithCost(cost int) *MemoryStore {
	s := NewMemoryStore()
	s.cost = cost
	return s
}

// Authenticate implements Authenticator.
func (s *MemoryStore) Authenticate(_ context.Context, login, password string) (bool, error) {
	if login == "" || password == "" {
		return false, ErrEmptyCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if hash, ok := s.hashes[login]; ok {
		return matches(hash, password), nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	s.hashes[login] = string(hashed)
	return true, nil
}
