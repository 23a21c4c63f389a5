package repository

import (
	"context"
	"errors"
	"time"

	"ForecastMix/internal/domain/repository"
	"ForecastMix/pkg/cache"
)

// ErrNoCheckpoint is returned when no snapshot exists for a mixture.
var ErrNoCheckpoint = errors.New("state store: no checkpoint")

// RedisStateStore keeps mixture checkpoints in Redis so a restarted
// instance can resume from the last persisted step.
type RedisStateStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewRedisStateStore creates a Redis-backed checkpoint store. A zero ttl
// keeps checkpoints until explicitly deleted.
func NewRedisStateStore(c cache.Service, ttl time.Duration) repository.StateStore {
	return &RedisStateStore{cache: c, ttl: ttl}
}

func stateKey(mixtureID string) string {
	return cache.Key("state", mixtureID)
}

func (s *RedisStateStore) Save(ctx context.Context, mixtureID string, snapshot []byte) error {
	return s.cache.Set(ctx, stateKey(mixtureID), string(snapshot), s.ttl)
}

func (s *RedisStateStore) Load(ctx context.Context, mixtureID string) ([]byte, error) {
	var raw string
	if err := s.cache.Get(ctx, stateKey(mixtureID), &raw); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNoCheckpoint
		}
		return nil, err
	}
	return []byte(raw), nil
}

func (s *RedisStateStore) Delete(ctx context.Context, mixtureID string) error {
	return s.cache.Delete(ctx, stateKey(mixtureID))
}

func (s *RedisStateStore) Close() error {
	return nil // Connection managed by pkg/cache
}
