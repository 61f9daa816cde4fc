package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Store holds live sessions.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int, error)
}

// MemoryStore implements Store in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Create adds a new session.
func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = clone(sess)
	return nil
}

// Get retrieves a session by ID and marks it as used.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}

	if sess.IsExpired() {
		delete(s.sessions, id)
		return nil, ErrSessionExpired
	}

	sess.LastUsedAt = time.Now()

	// Clone to avoid external modifications
	return clone(sess), nil
}

// Save replaces the stored copy of an existing session.
func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; !exists {
		return ErrSessionNotFound
	}

	s.sessions[sess.ID] = clone(sess)
	return nil
}

// Delete removes a session by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return ErrSessionNotFound
	}

	delete(s.sessions, id)
	return nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toDelete []string
	now := time.Now()

	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		delete(s.sessions, id)
	}

	return len(toDelete), nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func clone(sess *Session) *Session {
	c := *sess

	if sess.User != nil {
		u := *sess.User
		c.User = &u
	}
	if sess.PendingClaims != nil {
		pc := *sess.PendingClaims
		c.PendingClaims = &pc
	}

	c.ConsumedCodes = maps.Clone(sess.ConsumedCodes)
	c.Flashes = slices.Clone(sess.Flashes)

	return &c
}

var _ Store = (*MemoryStore)(nil)
