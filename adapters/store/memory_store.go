package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/chainauth/ports"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It is only suitable for a single instance.
type MemoryStore struct {
	invalidatedTokens map[string]time.Time
	nonces            map[string]time.Time
	mu                sync.RWMutex
	now               func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		invalidatedTokens: make(map[string]time.Time),
		nonces:            make(map[string]time.Time),
		now:               now,
	}
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime := s.now().Add(expiry)
	s.invalidatedTokens[tokenID] = expiryTime
	s.scheduleCleanup(s.invalidatedTokens, tokenID, expiryTime, expiry)

	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// Check if the token invalidation has expired
	if s.now().After(expiryTime) {
		return false, nil
	}

	return true, nil
}

// ConsumeNonce records a nonce as used. A nonce whose record has expired
// may be consumed again.
func (s *MemoryStore) ConsumeNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiryTime, exists := s.nonces[nonce]; exists && !now.After(expiryTime) {
		return false, nil
	}

	expiryTime := now.Add(ttl)
	s.nonces[nonce] = expiryTime
	s.scheduleCleanup(s.nonces, nonce, expiryTime, ttl)

	return true, nil
}

// scheduleCleanup removes key from m after d unless it was renewed.
// Must be called with s.mu held.
func (s *MemoryStore) scheduleCleanup(m map[string]time.Time, key string, expiryTime time.Time, d time.Duration) {
	go func() {
		time.Sleep(d)

		s.mu.Lock()
		defer s.mu.Unlock()

		// Only delete if the expiry time hasn't changed
		if storedExpiry, exists := m[key]; exists && !storedExpiry.After(expiryTime) {
			delete(m, key)
		}
	}()
}
