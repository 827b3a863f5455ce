package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"nivaran/internal/grievance"
	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/sentinel"
)

// InMemoryRecordStore keeps records in a map guarded by a mutex. The version
// check under the lock gives the same conditional-write semantics as the
// Postgres implementation, which is what the orchestrator tests rely on.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[id.GrievanceID]*grievance.Record
}

func NewInMemory() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[id.GrievanceID]*grievance.Record)}
}

func (s *InMemoryRecordStore) Create(_ context.Context, rec *grievance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	rec.Version = 1
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *InMemoryRecordStore) Get(_ context.Context, gid id.GrievanceID) (*grievance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[gid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemoryRecordStore) Update(_ context.Context, rec *grievance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[rec.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != rec.Version {
		return sentinel.ErrConflict
	}
	rec.Version++
	rec.UpdatedAt = time.Now()
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *InMemoryRecordStore) ListUnfinished(_ context.Context, updatedBefore time.Time, limit int) ([]id.GrievanceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*grievance.Record
	for _, rec := range s.records {
		if rec.Status.IsTerminal() || !rec.UpdatedAt.Before(updatedBefore) {
			continue
		}
		stale = append(stale, rec)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]id.GrievanceID, len(stale))
	for i, rec := range stale {
		ids[i] = rec.ID
	}
	return ids, nil
}

func (s *InMemoryRecordStore) PurgeEphemeral(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for _, rec := range s.records {
		if rec.CreatedAt.After(cutoff) {
			continue
		}
		if rec.AudioRef == "" && rec.Transcript == "" {
			continue
		}
		rec.PurgeEphemeral()
		rec.Version++
		rec.UpdatedAt = time.Now()
		purged++
	}
	return purged, nil
}
