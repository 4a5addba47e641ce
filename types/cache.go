package types

import (
	"context"
	"time"
)

// CacheManager is a byte-oriented key-value backend. A miss is reported through the
// boolean, never through the error.
type CacheManager interface {
	LifecycleManager
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Stats() CacheStats
}

type CacheManagerCreator func(config *CacheConfig) (CacheManager, error)

type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CacheStats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}
