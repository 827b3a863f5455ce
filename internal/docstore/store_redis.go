package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nivaran/pkg/platform/sentinel"
)

const docKeyPrefix = "doc:"

// RedisStore leans on key TTLs for the retention policy; there is no sweeper
// to run or forget.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, ref string, doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.client.Set(ctx, docKeyPrefix+ref, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, ref string) (Document, error) {
	raw, err := s.client.Get(ctx, docKeyPrefix+ref).Bytes()
	if errors.Is(err, redis.Nil) {
		return Document{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("fetch document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}
