package device

import (
	"context"
	"sync"
)

// MemoryStore keeps the registry in process memory. One mutex covers
// every read and the whole of TryCommit.
type MemoryStore struct {
	mu       sync.Mutex
	maxOwned int
	devices  map[ID]Owner
	owners   map[Owner][]ID
	count    uint64
}

// NewMemoryStore returns an empty store enforcing maxOwned devices per owner.
func NewMemoryStore(maxOwned int) *MemoryStore {
	return &MemoryStore{
		maxOwned: maxOwned,
		devices:  make(map[ID]Owner),
		owners:   make(map[Owner][]ID),
	}
}

// Contains reports whether id is registered.
func (s *MemoryStore) Contains(_ context.Context, id ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.devices[id]
	return ok, nil
}

// Get returns the record for id.
func (s *MemoryStore) Get(_ context.Context, id ID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.devices[id]
	if !ok {
		return Record{}, ErrDeviceNotFound
	}
	return Record{ID: id, Owner: owner}, nil
}

// OwnedBy returns a copy of the owner's index.
func (s *MemoryStore) OwnedBy(_ context.Context, owner Owner) ([]ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]ID, len(s.owners[owner]))
	copy(ids, s.owners[owner])
	return ids, nil
}

// Count returns the number of registered devices.
func (s *MemoryStore) Count(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, nil
}

// TryCommit registers rec atomically.
func (s *MemoryStore) TryCommit(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.devices[rec.ID]
	if err := checkCommit(exists, s.count, len(s.owners[rec.Owner]), s.maxOwned); err != nil {
		return err
	}

	s.devices[rec.ID] = rec.Owner
	s.owners[rec.Owner] = append(s.owners[rec.Owner], rec.ID)
	s.count++
	return nil
}
