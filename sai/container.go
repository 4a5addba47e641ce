package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/database"
	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/metrics"
	"github.com/saiset-co/sai-shop/repository"
	"github.com/saiset-co/sai-shop/types"
)

// Container holds the process-wide components once the service has built them.
type Container struct {
	Config   atomic.Pointer[types.ConfigManager]
	Logger   atomic.Pointer[types.Logger]
	Metrics  atomic.Pointer[types.MetricsManager]
	Cache    atomic.Pointer[cache.Store]
	Database atomic.Pointer[types.DatabaseManager]
	Repos    atomic.Pointer[repository.Repositories]
	Actions  atomic.Pointer[types.ActionBroker]
	Cron     atomic.Pointer[types.CronManager]
	Router   atomic.Pointer[types.HTTPRouter]
}

var globalContainer atomic.Pointer[Container]

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer.Store(container)
}

func current() *Container {
	container := globalContainer.Load()
	if container == nil {
		panic("container not initialized")
	}
	return container
}

func Config() types.ConfigManager {
	if ptr := current().Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

// Logger falls back to a no-op logger until the service has configured one.
func Logger() types.Logger {
	container := globalContainer.Load()
	if container == nil {
		return logger.NewNop()
	}
	if ptr := container.Logger.Load(); ptr != nil {
		return *ptr
	}
	return logger.NewNop()
}

// Metrics returns nil when metrics are disabled.
func Metrics() types.MetricsManager {
	if ptr := current().Metrics.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func Cache() *cache.Store {
	return current().Cache.Load()
}

func Repositories() *repository.Repositories {
	if repos := current().Repos.Load(); repos != nil {
		return repos
	}
	panic("Repositories not initialized")
}

// Actions returns nil when order events are disabled.
func Actions() types.ActionBroker {
	if ptr := current().Actions.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func Cron() types.CronManager {
	if ptr := current().Cron.Load(); ptr != nil {
		return *ptr
	}
	panic("CronManager not initialized")
}

func Router() types.HTTPRouter {
	if ptr := current().Router.Load(); ptr != nil {
		return *ptr
	}
	panic("Router not initialized")
}

func RegisterCacheManager(name string, creator types.CacheManagerCreator) {
	cache.RegisterCacheManager(name, creator)
}

func RegisterDatabaseManager(name string, creator types.DatabaseManagerCreator) {
	database.RegisterDatabaseManager(name, creator)
}

func RegisterMetricsManager(name string, creator types.MetricsManagerCreator) {
	metrics.RegisterMetricsManager(name, creator)
}

func RegisterLogger(name string, creator types.LoggerCreator) {
	logger.RegisterLogger(name, creator)
}

func (c *Container) SetConfig(config types.ConfigManager) {
	c.Config.Store(&config)
}

func (c *Container) SetLogger(logger types.Logger) {
	c.Logger.Store(&logger)
}

func (c *Container) SetMetrics(metrics types.MetricsManager) {
	if metrics == nil {
		return
	}
	c.Metrics.Store(&metrics)
}

func (c *Container) SetCache(store *cache.Store) {
	c.Cache.Store(store)
}

func (c *Container) SetDatabase(db types.DatabaseManager) {
	c.Database.Store(&db)
}

func (c *Container) SetRepositories(repos *repository.Repositories) {
	c.Repos.Store(repos)
}

func (c *Container) SetActions(actions types.ActionBroker) {
	if actions == nil {
		return
	}
	c.Actions.Store(&actions)
}

func (c *Container) SetCron(cron types.CronManager) {
	c.Cron.Store(&cron)
}

func (c *Container) SetRouter(router types.HTTPRouter) {
	c.Router.Store(&router)
}
