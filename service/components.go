package service

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/metrics"
	"github.com/saiset-co/sai-shop/repository"
	"github.com/saiset-co/sai-shop/types"
)

const (
	jobDashboardRollover = "dashboard-rollover"
	jobCacheReport       = "cache-report"
)

// registerJobs schedules the housekeeping jobs. Dashboard figures are bucketed by
// calendar month, so the admin keys are dropped when a new month starts.
func registerJobs(cron types.CronManager, store *cache.Store, logger types.Logger) error {
	err := cron.Add(jobDashboardRollover, "0 0 1 * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := store.Invalidate(ctx, cache.InvalidationRequest{Admin: true}); err != nil {
			logger.Error("Failed to roll dashboard cache over", zap.Error(err))
			return
		}
		logger.Info("Dashboard cache rolled over")
	})
	if err != nil {
		return err
	}

	return cron.Add(jobCacheReport, "*/15 * * * *", func() {
		stats := store.Stats()
		logger.Info("Cache report",
			zap.String("entries", humanize.Comma(int64(stats.Entries))),
			zap.Uint64("hits", stats.Hits),
			zap.Uint64("misses", stats.Misses),
			zap.Uint64("evictions", stats.Evictions))
	})
}

func registerHealthChecks(checks types.HealthManager, store *cache.Store, repos *repository.Repositories, tlsManager types.TLSManager) {
	checks.RegisterChecker("database", func(ctx context.Context) types.HealthCheck {
		users, err := repos.Users.Count(ctx, nil)
		if err != nil {
			return types.HealthCheck{Name: "database", Status: types.StatusUnhealthy, Message: err.Error()}
		}
		return types.HealthCheck{
			Name:    "database",
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"users": users},
		}
	})

	checks.RegisterOptionalChecker("cache", func(ctx context.Context) types.HealthCheck {
		if err := store.Ping(ctx); err != nil {
			if types.IsError(err, types.ErrCacheIsDisabled) {
				return types.HealthCheck{Name: "cache", Status: types.StatusHealthy, Message: "disabled"}
			}
			return types.HealthCheck{Name: "cache", Status: types.StatusUnhealthy, Message: err.Error()}
		}

		stats := store.Stats()
		return types.HealthCheck{
			Name:   "cache",
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"entries":   stats.Entries,
				"hits":      stats.Hits,
				"misses":    stats.Misses,
				"evictions": stats.Evictions,
			},
		}
	})

	if tlsManager == nil {
		return
	}

	checks.RegisterOptionalChecker("tls", func(ctx context.Context) types.HealthCheck {
		check := types.HealthCheck{Name: "tls", Status: types.StatusHealthy, Details: map[string]interface{}{}}
		for domain, status := range tlsManager.GetCertificateStatus() {
			check.Details[domain] = status
			if status.Error != "" {
				check.Status = types.StatusUnhealthy
				check.Message = status.Error
			}
		}
		return check
	})
}

func registerProbes(collector *metrics.Collector, store *cache.Store, repos *repository.Repositories) {
	collector.RegisterProbe("shop_products_total", func(ctx context.Context) (float64, error) {
		n, err := repos.Products.Count(ctx, nil)
		return float64(n), err
	})
	collector.RegisterProbe("shop_products_out_of_stock", func(ctx context.Context) (float64, error) {
		n, err := repos.Products.CountOutOfStock(ctx)
		return float64(n), err
	})
	collector.RegisterProbe("shop_orders_processing", func(ctx context.Context) (float64, error) {
		n, err := repos.Orders.CountByStatus(ctx, types.OrderProcessing)
		return float64(n), err
	})
	collector.RegisterProbe("shop_users_total", func(ctx context.Context) (float64, error) {
		n, err := repos.Users.Count(ctx, nil)
		return float64(n), err
	})
	collector.RegisterProbe("cache_entries", func(context.Context) (float64, error) {
		return float64(store.Stats().Entries), nil
	})
}
