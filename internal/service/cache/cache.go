package cache

import "time"

// BytesCache stores raw response bytes with a TTL. Used for the report
// projections and finished oracle job results.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
