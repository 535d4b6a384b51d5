package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("refresh session not found")

// SessionStore keeps the single live refresh token per user. Putting a new
// token overwrites the old one, which invalidates it.
type SessionStore interface {
	Put(ctx context.Context, userID int64, token string, ttl time.Duration) error
	// Get returns the stored token or ErrSessionNotFound.
	Get(ctx context.Context, userID int64) (string, error)
	Delete(ctx context.Context, userID int64) error
}

type memorySession struct {
	token     string
	expiresAt time.Time
}

// MemorySessionStore is an in-process session store for tests and single-node
// development setups.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]memorySession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[int64]memorySession),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Put(_ context.Context, userID int64, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = memorySession{token: token, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, userID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok || m.now().After(s.expiresAt) {
		delete(m.sessions, userID)
		return "", ErrSessionNotFound
	}
	return s.token, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
