package markers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nivaran/internal/grievance"
	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/sentinel"
)

const markerKeyPrefix = "delivery:marker:"

// markerTTL keeps resolved markers around long past the pipeline deadline so
// retried invocations observe prior outcomes, without growing unbounded.
const markerTTL = 7 * 24 * time.Hour

// RedisStore implements the write-once claim with SETNX, which is atomic on
// the server, so two racing claimants can never both create the marker.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(gid id.GrievanceID, channel grievance.Channel) string {
	return markerKeyPrefix + gid.String() + ":" + string(channel)
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, m Marker) (Marker, bool, error) {
	m.UpdatedAt = time.Now()
	payload, err := json.Marshal(m)
	if err != nil {
		return Marker{}, false, fmt.Errorf("marshal marker: %w", err)
	}

	key := redisKey(m.GrievanceID, m.Channel)
	created, err := s.client.SetNX(ctx, key, payload, markerTTL).Result()
	if err != nil {
		return Marker{}, false, fmt.Errorf("claim marker: %w", err)
	}
	if created {
		return m, true, nil
	}

	existing, err := s.Get(ctx, m.GrievanceID, m.Channel)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Lost the race and the winner's marker expired between calls;
		// treat as conflict and let the caller re-drive.
		return Marker{}, false, sentinel.ErrConflict
	}
	if err != nil {
		return Marker{}, false, err
	}
	return existing, false, nil
}

func (s *RedisStore) Update(ctx context.Context, m Marker) error {
	m.UpdatedAt = time.Now()
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	set, err := s.client.SetXX(ctx, redisKey(m.GrievanceID, m.Channel), payload, markerTTL).Result()
	if err != nil {
		return fmt.Errorf("update marker: %w", err)
	}
	if !set {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, gid id.GrievanceID, channel grievance.Channel) (Marker, error) {
	raw, err := s.client.Get(ctx, redisKey(gid, channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Marker{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Marker{}, fmt.Errorf("fetch marker: %w", err)
	}
	var m Marker
	if err := json.Unmarshal(raw, &m); err != nil {
		return Marker{}, fmt.Errorf("unmarshal marker: %w", err)
	}
	return m, nil
}
