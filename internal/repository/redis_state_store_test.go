package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"ForecastMix/pkg/cache"
)

// mapCache is an in-memory cache.Service stub for state store tests.
type mapCache struct {
	data map[string]string
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string]string)} }

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s, ok := value.(string)
	if !ok {
		return errors.New("unexpected value type")
	}
	c.data[key] = s
	return nil
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	v, ok := c.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	p, ok := dest.(*string)
	if !ok {
		return errors.New("unexpected dest type")
	}
	*p = v
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *mapCache) Exists(_ context.Context, keys ...string) (bool, error) {
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (c *mapCache) Expire(context.Context, string, time.Duration) (bool, error) { return true, nil }

func TestStateStoreRoundTrip(t *testing.T) {
	store := NewRedisStateStore(newMapCache(), 0)
	ctx := context.Background()

	snap := []byte(`{"steps":42}`)
	if err := store.Save(ctx, "m1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "m1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != string(snap) {
		t.Fatalf("got %q, want %q", got, snap)
	}
}

func TestStateStoreMissingCheckpoint(t *testing.T) {
	store := NewRedisStateStore(newMapCache(), 0)
	if _, err := store.Load(context.Background(), "ghost"); !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("expected ErrNoCheckpoint, got %v", err)
	}
}

func TestStateStoreDelete(t *testing.T) {
	store := NewRedisStateStore(newMapCache(), 0)
	ctx := context.Background()

	if err := store.Save(ctx, "m1", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "m1"); !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("expected ErrNoCheckpoint after delete, got %v", err)
	}
}
