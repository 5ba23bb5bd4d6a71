package verification

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type memoryEntry struct {
	challenge Challenge
	attempts  int
	expiresAt time.Time
}

// MemoryStore keeps challenges in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore builds an in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

// WithClock replaces the store clock.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Save(_ context.Context, ch Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ch.ID] = &memoryEntry{challenge: ch, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, id, code string, maxAttempts int) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return Challenge{}, ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, id)
		return Challenge{}, ErrNotFound
	}

	if subtle.ConstantTimeCompare([]byte(entry.challenge.CodeHash), []byte(HashCode(code))) != 1 {
		entry.attempts++
		if entry.attempts >= maxAttempts {
			delete(s.entries, id)
			return Challenge{}, ErrAttemptsExceeded
		}
		return Challenge{}, ErrCodeMismatch
	}

	delete(s.entries, id)
	return entry.challenge, nil
}
