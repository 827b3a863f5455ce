package markers

import (
	"context"
	"sync"
	"time"

	"nivaran/internal/grievance"
	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/sentinel"
)

type markerKey struct {
	gid     id.GrievanceID
	channel grievance.Channel
}

// InMemoryStore gives the same compare-and-set semantics as the Redis store,
// with the map mutex standing in for SETNX atomicity.
type InMemoryStore struct {
	mu      sync.Mutex
	markers map[markerKey]Marker
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{markers: make(map[markerKey]Marker)}
}

func (s *InMemoryStore) PutIfAbsent(_ context.Context, m Marker) (Marker, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := markerKey{m.GrievanceID, m.Channel}
	if existing, ok := s.markers[key]; ok {
		return existing, false, nil
	}
	m.UpdatedAt = time.Now()
	s.markers[key] = m
	return m, true, nil
}

func (s *InMemoryStore) Update(_ context.Context, m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := markerKey{m.GrievanceID, m.Channel}
	if _, ok := s.markers[key]; !ok {
		return sentinel.ErrNotFound
	}
	m.UpdatedAt = time.Now()
	s.markers[key] = m
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, gid id.GrievanceID, channel grievance.Channel) (Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.markers[markerKey{gid, channel}]; ok {
		return m, nil
	}
	return Marker{}, sentinel.ErrNotFound
}
