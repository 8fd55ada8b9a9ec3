// Package session provides anonymous session identifiers that survive
// across requests. A session may hold a reference to the cart it last
// used.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

const DefaultTTL = 14 * 24 * time.Hour

// Store is the session provider
type Store interface {
	// Create starts a new anonymous session and returns its id
	Create(ctx context.Context) (string, error)
	// Exists reports whether id is a live session and extends its lifetime
	Exists(ctx context.Context, id string) (bool, error)
	// SetCartID records the cart the session refers to
	SetCartID(ctx context.Context, id, cartID string) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

type memorySession struct {
	cartID    string
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.sessions[id] = &memorySession{expiresAt: s.now().Add(s.ttl)}
	return id, nil
}

func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil {
		return false, nil
	}
	sess.expiresAt = s.now().Add(s.ttl)
	return true, nil
}

func (s *MemoryStore) SetCartID(ctx context.Context, id, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil {
		return ErrSessionNotFound
	}
	sess.cartID = cartID
	return nil
}

// CartID returns the recorded cart id, or "" if none
func (s *MemoryStore) CartID(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil {
		return "", ErrSessionNotFound
	}
	return sess.cartID, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// live returns the session or nil, dropping it if expired. Caller holds mu.
func (s *MemoryStore) live(id string) *memorySession {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, id)
		return nil
	}
	return sess
}
