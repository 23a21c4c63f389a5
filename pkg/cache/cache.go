package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the key/value surface the application depends on. Strings pass
// through unencoded; any other value is stored as JSON.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

// Key joins parts into a colon-separated cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
