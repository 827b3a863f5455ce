package docstore

import (
	"context"
	"sync"
	"time"

	"nivaran/pkg/platform/sentinel"
)

type storedDoc struct {
	doc      Document
	storedAt time.Time
}

// InMemoryStore expires entries lazily on read. The clock is injectable so
// tests can cross the TTL without sleeping.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]storedDoc
	ttl  time.Duration
	now  func() time.Time
}

// MemoryOption configures an InMemoryStore.
type MemoryOption func(*InMemoryStore)

func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *InMemoryStore) { s.ttl = ttl }
}

func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) { s.now = now }
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		docs: make(map[string]storedDoc),
		ttl:  DefaultTTL,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *InMemoryStore) Put(_ context.Context, ref string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := make([]byte, len(doc.Body))
	copy(body, doc.Body)
	doc.Body = body
	s.docs[ref] = storedDoc{doc: doc, storedAt: s.now()}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, ref string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.docs[ref]
	if !ok {
		return Document{}, sentinel.ErrNotFound
	}
	if s.now().Sub(stored.storedAt) >= s.ttl {
		delete(s.docs, ref)
		return Document{}, sentinel.ErrNotFound
	}
	return stored.doc, nil
}
