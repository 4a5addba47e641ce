package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

// Store is the typed edge of the cache. Values cross it as sonic JSON, so a hit
// decodes to the same shape the loader produced on the miss. A Store without a
// backend passes every read through to the loader.
type Store struct {
	backend    types.CacheManager
	logger     types.Logger
	defaultTTL time.Duration
}

func NewStore(backend types.CacheManager, logger types.Logger, defaultTTL time.Duration) *Store {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &Store{
		backend:    backend,
		logger:     logger,
		defaultTTL: defaultTTL,
	}
}

func (s *Store) Enabled() bool {
	return s != nil && s.backend != nil
}

// Get decodes the value stored under key. A missing or undecodable entry reports
// false with a nil error; undecodable entries are removed.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool, error) {
	var value T

	if !s.Enabled() {
		return value, false, nil
	}

	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return value, false, upstream("get", key, err)
	}
	if !ok {
		return value, false, nil
	}

	if err := utils.Unmarshal(data, &value); err != nil {
		s.logger.Warn("Dropping corrupted cache entry",
			zap.String("key", key),
			zap.Error(types.Errorf(types.ErrCacheCorrupted, "%v", err)))

		if delErr := s.backend.Delete(ctx, key); delErr != nil {
			s.logger.Error("Failed to delete corrupted cache entry", zap.String("key", key), zap.Error(delErr))
		}

		var zero T
		return zero, false, nil
	}

	return value, true, nil
}

// Set encodes value and stores it under key. A non-positive ttl uses the store default.
func Set[T any](ctx context.Context, s *Store, key string, value T, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}

	data, err := utils.Marshal(value)
	if err != nil {
		return types.WrapError(err, "cache encode "+key)
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if err := s.backend.Set(ctx, key, data, ttl); err != nil {
		return upstream("set", key, err)
	}

	return nil
}

// Remember returns the cached value under key, or runs load exactly once,
// caches its result and returns it. The miss path returns the decoded stored
// bytes so both paths yield identical values. Concurrent misses may both load;
// each writes a complete value.
func Remember[T any](ctx context.Context, s *Store, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	cached, ok, err := Get[T](ctx, s, key)
	if err != nil {
		var zero T
		return zero, err
	}
	if ok {
		return cached, nil
	}

	fresh, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if !s.Enabled() {
		return fresh, nil
	}

	data, err := utils.Marshal(fresh)
	if err != nil {
		var zero T
		return zero, types.WrapError(err, "cache encode "+key)
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if err := s.backend.Set(ctx, key, data, ttl); err != nil {
		var zero T
		return zero, upstream("set", key, err)
	}

	var result T
	if err := utils.Unmarshal(data, &result); err != nil {
		var zero T
		return zero, types.WrapError(err, "cache decode "+key)
	}

	return result, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}

	if err := s.backend.Delete(ctx, keys...); err != nil {
		return upstream("delete", strings.Join(keys, ","), err)
	}
	return nil
}

// Invalidate deletes every key implied by req in one backend call.
func (s *Store) Invalidate(ctx context.Context, req InvalidationRequest) error {
	keys := req.Keys()
	if len(keys) == 0 {
		return nil
	}

	if err := s.Delete(ctx, keys...); err != nil {
		return err
	}

	if s.Enabled() {
		s.logger.Debug("Cache invalidated", zap.Strings("keys", keys))
	}
	return nil
}

func (s *Store) Stats() types.CacheStats {
	if !s.Enabled() {
		return types.CacheStats{}
	}
	return s.backend.Stats()
}

func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return types.ErrCacheIsDisabled
	}
	return s.backend.Ping(ctx)
}

func upstream(operation, key string, err error) error {
	return fmt.Errorf("%w: cache %s %s: %w", types.ErrUpstream, operation, key, err)
}
