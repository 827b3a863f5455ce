package audit

import (
	"context"
	"sync"

	id "nivaran/pkg/domain"
)

// InMemoryStore keeps per-grievance entry slices in insertion order, which is
// also traversal order since the orchestrator appends as it advances.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.GrievanceID][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.GrievanceID][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.GrievanceID] = append(s.entries[entry.GrievanceID], entry)
	return nil
}

func (s *InMemoryStore) ListByGrievance(_ context.Context, gid id.GrievanceID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries[gid]...), nil
}
