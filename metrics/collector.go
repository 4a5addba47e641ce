package metrics

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

type CollectorState int32

const (
	CollectorStateStopped CollectorState = iota
	CollectorStateRunning
	CollectorStateStopping
)

// Probe reads one gauge value. Probes that fail leave the previous value in place.
type Probe func(ctx context.Context) (float64, error)

// Collector samples registered probes and process runtime stats into gauges.
type Collector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   types.Logger
	metrics  types.MetricsManager
	interval time.Duration
	state    atomic.Value
	started  time.Time
	mu       sync.RWMutex
	probes   map[string]Probe
	done     chan struct{}
}

func NewCollector(ctx context.Context, logger types.Logger, metricsManager types.MetricsManager, interval time.Duration) *Collector {
	collectorCtx, cancel := context.WithCancel(ctx)
	if interval <= 0 {
		interval = 15 * time.Second
	}

	c := &Collector{
		ctx:      collectorCtx,
		cancel:   cancel,
		logger:   logger,
		metrics:  metricsManager,
		interval: interval,
		probes:   make(map[string]Probe),
		done:     make(chan struct{}),
	}
	c.state.Store(CollectorStateStopped)

	return c
}

func (c *Collector) RegisterProbe(name string, probe Probe) {
	c.mu.Lock()
	c.probes[name] = probe
	c.mu.Unlock()
}

func (c *Collector) Start() error {
	if !c.state.CompareAndSwap(CollectorStateStopped, CollectorStateRunning) {
		return types.ErrServerAlreadyRunning
	}

	c.started = time.Now()
	c.Collect()

	go c.loop()

	c.logger.Info("Metrics collector started", zap.Duration("interval", c.interval))
	return nil
}

func (c *Collector) Stop() error {
	if !c.state.CompareAndSwap(CollectorStateRunning, CollectorStateStopping) {
		return types.ErrServerNotRunning
	}

	c.cancel()
	<-c.done
	c.state.Store(CollectorStateStopped)

	c.logger.Info("Metrics collector stopped")
	return nil
}

func (c *Collector) IsRunning() bool {
	return c.state.Load().(CollectorState) == CollectorStateRunning
}

func (c *Collector) loop() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.ctx.Done():
			return
		}
	}
}

// Collect runs one sampling pass.
func (c *Collector) Collect() {
	c.collectRuntime()

	c.mu.RLock()
	probes := make(map[string]Probe, len(c.probes))
	for name, probe := range c.probes {
		probes[name] = probe
	}
	c.mu.RUnlock()

	for name, probe := range probes {
		ctx, cancel := context.WithTimeout(c.ctx, c.interval)
		value, err := probe(ctx)
		cancel()

		if err != nil {
			c.logger.Debug("Metrics probe failed", zap.String("probe", name), zap.Error(err))
			continue
		}
		c.metrics.Gauge(name, nil).Set(value)
	}
}

func (c *Collector) collectRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	gauges := []struct {
		name   string
		labels map[string]string
		value  float64
	}{
		{"system_goroutines_count", nil, float64(runtime.NumGoroutine())},
		{"system_uptime_seconds", nil, time.Since(c.started).Seconds()},
		{"system_memory_usage_bytes", map[string]string{"type": "heap_inuse"}, float64(m.HeapInuse)},
		{"system_memory_usage_bytes", map[string]string{"type": "heap_alloc"}, float64(m.HeapAlloc)},
		{"system_memory_usage_bytes", map[string]string{"type": "sys"}, float64(m.Sys)},
		{"system_gc_cycles_total", nil, float64(m.NumGC)},
	}

	for _, g := range gauges {
		c.metrics.Gauge(g.name, g.labels).Set(g.value)
	}
}
