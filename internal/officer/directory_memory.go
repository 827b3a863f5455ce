package officer

import (
	"context"
	"sync"

	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/sentinel"
)

// InMemoryDirectory serves lookups from a seeded map. Production deployments
// use the Postgres directory; this one backs tests and dev mode.
type InMemoryDirectory struct {
	mu      sync.RWMutex
	records map[id.DistrictCode]Record
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{records: make(map[id.DistrictCode]Record)}
}

// Seed loads or replaces directory entries.
func (d *InMemoryDirectory) Seed(records ...Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range records {
		d.records[r.District] = r
	}
}

func (d *InMemoryDirectory) Lookup(_ context.Context, code id.DistrictCode) (Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if r, ok := d.records[code]; ok {
		return r, nil
	}
	return Record{}, sentinel.ErrNotFound
}
