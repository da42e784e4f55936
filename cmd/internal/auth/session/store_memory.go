package session

import (
	"context"
	"sync"
	"time"

	"parley/cmd/identity/ids"
)

// MemoryStore is an in-process Store and DelegatedStore for dev mode and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]Row
	delegated map[string]DelegatedToken
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]Row),
		delegated: make(map[string]DelegatedToken),
	}
}

func (s *MemoryStore) Create(ctx context.Context, now time.Time, userID string, expiresAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = Row{ID: id, UserID: userID, CreatedAt: now, ExpiresAt: expiresAt}
	return id, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.sessions[sessionID]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return row, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, now time.Time, sessionID string, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sessions[sessionID]
	if !ok || row.RevokedAt != nil {
		return nil
	}
	row.RevokedAt = &now
	s.sessions[sessionID] = row
	return nil
}

// PutDelegated stores a delegated token under its hash.
func (s *MemoryStore) PutDelegated(hash string, tok DelegatedToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegated[hash] = tok
}

func (s *MemoryStore) LookupDelegated(ctx context.Context, hash string) (DelegatedToken, error) {
	if err := ctx.Err(); err != nil {
		return DelegatedToken{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.delegated[hash]
	if !ok {
		return DelegatedToken{}, ErrTokenNotFound
	}
	return tok, nil
}
