package sai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/types"
)

type staticConfig struct {
	config *types.ServiceConfig
}

func (s staticConfig) Load() error { return nil }

func (s staticConfig) GetConfig() *types.ServiceConfig { return s.config }

func (s staticConfig) GetValue(string, interface{}) interface{} { return nil }

func (s staticConfig) GetAs(string, interface{}) error { return nil }

func TestContainerAccessors(t *testing.T) {
	SetContainer(nil)
	assert.NotNil(t, Logger())
	assert.Panics(t, func() { Config() })

	container := InitContainer()
	SetContainer(container)

	assert.Nil(t, Metrics())
	assert.Nil(t, Actions())
	assert.Nil(t, Cache())
	assert.Panics(t, func() { Router() })

	cfg := staticConfig{config: &types.ServiceConfig{Name: "sai-shop"}}
	container.SetConfig(cfg)
	container.SetLogger(logger.NewNop())
	container.SetMetrics(nil)
	store := cache.NewStore(nil, logger.NewNop(), time.Minute)
	container.SetCache(store)

	assert.Equal(t, "sai-shop", Config().GetConfig().Name)
	assert.Same(t, store, Cache())
	assert.Nil(t, Metrics())
}

func TestRegisterCacheManager(t *testing.T) {
	RegisterCacheManager("scratch", func(config *types.CacheConfig) (types.CacheManager, error) {
		return cache.NewMemoryCache(context.Background(), logger.NewNop(), config)
	})

	cfg := staticConfig{config: &types.ServiceConfig{
		Cache: &types.CacheConfig{Enabled: true, Type: "scratch"},
	}}

	backend, err := cache.NewCacheManager(context.Background(), cfg, logger.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, backend.Start())
	defer backend.Stop()

	require.NoError(t, backend.Set(context.Background(), "latest-products", []byte(`[]`), time.Minute))
	value, ok, err := backend.Get(context.Background(), "latest-products")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(value))
}
