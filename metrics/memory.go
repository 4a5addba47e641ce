package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

// MemoryMetrics keeps metric values in process. It backs tests and deployments
// without a Prometheus scraper.
type MemoryMetrics struct {
	logger     types.Logger
	counters   map[string]*memoryCounter
	gauges     map[string]*memoryGauge
	histograms map[string]*memoryHistogram
	mu         sync.RWMutex
	running    int32
}

func NewMemoryMetrics(logger types.Logger) *MemoryMetrics {
	return &MemoryMetrics{
		logger:     logger,
		counters:   make(map[string]*memoryCounter),
		gauges:     make(map[string]*memoryGauge),
		histograms: make(map[string]*memoryHistogram),
	}
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServerNotRunning
	}
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	counter, exists := m.counters[key]
	if !exists {
		counter = &memoryCounter{}
		m.counters[key] = counter
	}
	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	gauge, exists := m.gauges[key]
	if !exists {
		gauge = &memoryGauge{}
		m.gauges[key] = gauge
	}
	return gauge
}

func (m *MemoryMetrics) Histogram(name string, _ []float64, labels map[string]string) types.Histogram {
	key := seriesKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	histogram, exists := m.histograms[key]
	if !exists {
		histogram = &memoryHistogram{}
		m.histograms[key] = histogram
	}
	return histogram
}

// Snapshot returns counter and gauge values keyed by name{label=value,...}.
func (m *MemoryMetrics) Snapshot() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]float64, len(m.counters)+len(m.gauges))
	for key, counter := range m.counters {
		result[key] = counter.Get()
	}
	for key, gauge := range m.gauges {
		result[key] = gauge.Get()
	}
	return result
}

func (m *MemoryMetrics) GetStats() ([]byte, error) {
	m.mu.RLock()
	stats := types.MetricsStats{
		TotalMetrics:     len(m.counters) + len(m.gauges) + len(m.histograms),
		CounterMetrics:   len(m.counters),
		GaugeMetrics:     len(m.gauges),
		HistogramMetrics: len(m.histograms),
		LastUpdate:       time.Now(),
	}
	m.mu.RUnlock()

	return utils.Marshal(map[string]interface{}{
		"stats":  stats,
		"values": m.Snapshot(),
	})
}

func (m *MemoryMetrics) RegisterRoutes(router types.HTTPRouter) {
	router.Add("GET", "/metrics", func(ctx *types.RequestCtx) {
		data, err := m.GetStats()
		if err != nil {
			utils.CreateErrorResponse(ctx)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBody(data)
	}, &types.RouteConfig{
		Timeout:             5 * time.Second,
		DisabledMiddlewares: []string{"logging", "rate_limit"},
	})
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	names := make([]string, 0, len(labels))
	for label := range labels {
		names = append(names, label)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, label := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(label)
		b.WriteByte('=')
		b.WriteString(labels[label])
	}
	b.WriteByte('}')
	return b.String()
}

type atomicFloat struct {
	bits uint64
}

func (f *atomicFloat) add(delta float64) {
	for {
		old := atomic.LoadUint64(&f.bits)
		updated := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(&f.bits, old, updated) {
			return
		}
	}
}

func (f *atomicFloat) set(value float64) {
	atomic.StoreUint64(&f.bits, math.Float64bits(value))
}

func (f *atomicFloat) get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&f.bits))
}

type memoryCounter struct {
	value atomicFloat
}

func (c *memoryCounter) Inc()              { c.value.add(1) }
func (c *memoryCounter) Add(value float64) { c.value.add(value) }
func (c *memoryCounter) Get() float64      { return c.value.get() }

type memoryGauge struct {
	value atomicFloat
}

func (g *memoryGauge) Set(value float64) { g.value.set(value) }
func (g *memoryGauge) Inc()              { g.value.add(1) }
func (g *memoryGauge) Dec()              { g.value.add(-1) }
func (g *memoryGauge) Add(value float64) { g.value.add(value) }
func (g *memoryGauge) Get() float64      { return g.value.get() }

type memoryHistogram struct {
	count uint64
	sum   atomicFloat
}

func (h *memoryHistogram) Observe(value float64) {
	atomic.AddUint64(&h.count, 1)
	h.sum.add(value)
}

func (h *memoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *memoryHistogram) GetCount() uint64 { return atomic.LoadUint64(&h.count) }
func (h *memoryHistogram) GetSum() float64  { return h.sum.get() }
