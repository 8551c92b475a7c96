package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/shared"
)

// InMemorySessionStore keeps one session per address in a map.
// Expiry is checked on every Get; Compact only frees memory.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[conversation.Address]conversation.Session
	now      Clock
}

// NewInMemorySessionStore creates an empty store
func NewInMemorySessionStore() *InMemorySessionStore {
	return NewInMemorySessionStoreWithClock(time.Now)
}

// NewInMemorySessionStoreWithClock creates a store reading time from now
func NewInMemorySessionStoreWithClock(now Clock) *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[conversation.Address]conversation.Session),
		now:      now,
	}
}

// Get returns the live session for addr, or nil
func (s *InMemorySessionStore) Get(_ context.Context, addr conversation.Address) (*conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[addr]
	if !ok {
		return nil, nil
	}
	if sess.IsExpired(s.now()) {
		delete(s.sessions, addr)
		return nil, nil
	}
	return &sess, nil
}

// Put replaces the session for the address
func (s *InMemorySessionStore) Put(_ context.Context, sess *conversation.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Address] = *sess
	return nil
}

// Delete drops the session for addr
func (s *InMemorySessionStore) Delete(_ context.Context, addr conversation.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, addr)
	return nil
}

// Compact removes expired sessions and returns how many were removed
func (s *InMemorySessionStore) Compact(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for addr, sess := range s.sessions {
		if sess.IsExpired(now) {
			delete(s.sessions, addr)
			removed++
		}
	}
	return removed, nil
}

// Size returns the number of resident sessions
func (s *InMemorySessionStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

var (
	_ conversation.SessionStore = (*InMemorySessionStore)(nil)
	_ shared.Compactor          = (*InMemorySessionStore)(nil)
)
