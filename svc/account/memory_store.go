package account

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps users in process. Used by tests of packages that need
// real accounts without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]User
	hashes map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User), hashes: make(map[string]string)}
}

func (m *MemoryStore) Create(_ context.Context, u User, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if NormalizeEmail(existing.Email) == NormalizeEmail(u.Email) {
			return ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	m.hashes[u.ID] = passwordHash
	return nil
}

func (m *MemoryStore) ByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryStore) ByEmail(_ context.Context, email string) (User, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, u := range m.users {
		if NormalizeEmail(u.Email) == NormalizeEmail(email) {
			return u, m.hashes[id], nil
		}
	}
	return User{}, "", ErrUserNotFound
}

func (m *MemoryStore) UpdateProfile(_ context.Context, id string, p ProfileUpdate) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return u, nil
}

// Put replaces a stored user, keeping its password hash.
func (m *MemoryStore) Put(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}
