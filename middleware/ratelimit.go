package middleware

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

const shardCount = 64

type RateLimitMiddleware struct {
	ctx             context.Context
	logger          types.Logger
	metrics         types.MetricsManager
	rateLimitConfig *RateLimitConfig
	shards          [shardCount]*rateLimitShard
	stopCleanup     chan struct{}
	workerGroup     sync.WaitGroup
	shutdown        int32
	weight          int
	now             func() time.Time
}

type rateLimitShard struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int64
	windowStart time.Time
	lastAccess  time.Time
}

type RateLimitConfig struct {
	RequestsPerWindow int64  `json:"requests_per_window"`
	Window            string `json:"window"`
	window            time.Duration
}

func NewRateLimitMiddleware(ctx context.Context, config *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *RateLimitMiddleware {
	var rateLimitConfig = &RateLimitConfig{
		RequestsPerWindow: 100,
		Window:            "1m",
	}

	if config != nil && config.Params != nil {
		err := utils.UnmarshalConfig(config.Params, rateLimitConfig)
		if err != nil {
			logger.Error("Failed to unmarshal RateLimit middleware config", zap.Error(err))
		}
	}

	window, err := time.ParseDuration(rateLimitConfig.Window)
	if err != nil || window <= 0 {
		window = time.Minute
	}
	rateLimitConfig.window = window

	if ctx == nil {
		ctx = context.Background()
	}

	rl := &RateLimitMiddleware{
		ctx:             ctx,
		logger:          logger,
		metrics:         metrics,
		rateLimitConfig: rateLimitConfig,
		stopCleanup:     make(chan struct{}),
		weight:          weightOf(NameRateLimit, config),
		now:             time.Now,
	}

	for i := range rl.shards {
		rl.shards[i] = &rateLimitShard{clients: make(map[string]*clientWindow)}
	}

	rl.workerGroup.Add(1)
	go rl.cleanupWorker()

	return rl
}

func (rl *RateLimitMiddleware) Name() string { return NameRateLimit }
func (rl *RateLimitMiddleware) Weight() int  { return rl.weight }

func (rl *RateLimitMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	clientIP := RealIP(ctx)

	if !rl.allow(clientIP) {
		if rl.metrics != nil {
			rl.metrics.Counter("http_rate_limited_total", nil).Inc()
		}

		ctx.Response.Header.Set("Retry-After", strconv.Itoa(int(rl.rateLimitConfig.window.Seconds())))
		ctx.Response.Header.Set("X-RateLimit-Limit", strconv.FormatInt(rl.rateLimitConfig.RequestsPerWindow, 10))
		utils.WriteError(ctx, types.Errorf(types.ErrRateLimitExceeded, "Too many requests"))
		return
	}

	next(ctx)
}

func (rl *RateLimitMiddleware) allow(clientIP string) bool {
	shard := rl.shard(clientIP)
	now := rl.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	client, exists := shard.clients[clientIP]
	if !exists || now.Sub(client.windowStart) >= rl.rateLimitConfig.window {
		shard.clients[clientIP] = &clientWindow{count: 1, windowStart: now, lastAccess: now}
		return true
	}

	client.lastAccess = now
	client.count++
	return client.count <= rl.rateLimitConfig.RequestsPerWindow
}

func (rl *RateLimitMiddleware) shard(clientIP string) *rateLimitShard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(clientIP))
	return rl.shards[hasher.Sum32()%shardCount]
}

func (rl *RateLimitMiddleware) cleanupWorker() {
	defer rl.workerGroup.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.ctx.Done():
			return
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimitMiddleware) cleanup() {
	cutoff := rl.now().Add(-2 * rl.rateLimitConfig.window)

	removed := 0
	for _, shard := range rl.shards {
		shard.mu.Lock()
		for ip, client := range shard.clients {
			if client.lastAccess.Before(cutoff) {
				delete(shard.clients, ip)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	if removed > 0 {
		rl.logger.Debug("Rate limit windows evicted", zap.Int("count", removed))
	}
}

func (rl *RateLimitMiddleware) Stop() error {
	if !atomic.CompareAndSwapInt32(&rl.shutdown, 0, 1) {
		return nil
	}

	close(rl.stopCleanup)
	rl.workerGroup.Wait()

	rl.logger.Info("Rate limit middleware stopped")
	return nil
}
