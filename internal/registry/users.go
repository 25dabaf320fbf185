package registry

import (
	"errors"
	"sort"
	"sync"
)

// ErrUserNotFound is returned when mutating a login the registry has never seen.
var ErrUserNotFound = errors.New("user not found")

// User is a known login and its presence flags. Users are never removed.
type User struct {
	Login     string
	IsLogined bool
	IsActive  bool
}

// UserRegistry tracks every user seen since startup.
type UserRegistry struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewUserRegistry creates an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[string]*User)}
}

// GetOrCreate returns the user for login, creating a logged-out user if it
// is unknown.
func (r *UserRegistry) GetOrCreate(login string) User {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[login]
	if !ok {
		u = &User{Login: login}
		r.users[login] = u
	}
	return *u
}

// Get returns the user for login.
func (r *UserRegistry) Get(login string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[login]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// Exists reports whether login has been seen.
func (r *UserRegistry) Exists(login string) bool {
	_, ok := r.Get(login)
	return ok
}

// SetLogined flips the login flag. Logging out also clears the active flag.
func (r *UserRegistry) SetLogined(login string, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[login]
	if !ok {
		return ErrUserNotFound
	}
	u.IsLogined = value
	u.IsActive = value
	return nil
}

// SetActive flips the active/away flag of a user.
func (r *UserRegistry) SetActive(login string, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[login]
	if !ok {
		return ErrUserNotFound
	}
	u.IsActive = value
	return nil
}

// All returns a snapshot of every known user ordered by login.
func (r *UserRegistry) All() []User {
	r.mu.RLock()
	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *u)
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Login < users[j].Login })
	return users
}

// OnlineCount returns how many users are logged in.
func (r *UserRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, u := range r.users {
		if u.IsLogined {
			n++
		}
	}
	return n
}
