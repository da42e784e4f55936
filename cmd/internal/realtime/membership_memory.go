package realtime

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryMembershipStore is an in-process MembershipStore for dev mode and tests.
type MemoryMembershipStore struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // user -> rooms
	err   error
}

// NewMemoryMembershipStore constructs an empty store.
func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{rooms: make(map[string]map[string]struct{})}
}

// Join records userID as a member of roomID.
func (s *MemoryMembershipStore) Join(userID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.rooms[userID]
	if !ok {
		set = make(map[string]struct{})
		s.rooms[userID] = set
	}
	set[roomID] = struct{}{}
}

// Leave removes userID from roomID.
func (s *MemoryMembershipStore) Leave(userID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.rooms[userID]
	if !ok {
		return
	}
	delete(set, roomID)
	if len(set) == 0 {
		delete(s.rooms, userID)
	}
}

// FailWith makes subsequent RoomsForUser calls return err. Pass nil to recover.
func (s *MemoryMembershipStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryMembershipStore) RoomsForUser(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	return slices.Sorted(maps.Keys(s.rooms[userID])), nil
}
