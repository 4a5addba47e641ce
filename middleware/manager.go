package middleware

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

const MaxMiddlewares = 64

const (
	NameRecovery    = "recovery"
	NameMetadata    = "metadata"
	NameLogging     = "logging"
	NameCORS        = "cors"
	NameRateLimit   = "rate_limit"
	NameBodyLimit   = "body_limit"
	NameCompression = "compression"
	NameAdmin       = "admin"
)

var defaultWeights = map[string]int{
	NameRecovery:    10,
	NameMetadata:    20,
	NameLogging:     30,
	NameCORS:        40,
	NameRateLimit:   50,
	NameBodyLimit:   60,
	NameCompression: 70,
	NameAdmin:       80,
}

// Dependencies are the collaborators some middlewares need.
type Dependencies struct {
	Context context.Context
	Logger  types.Logger
	Metrics types.MetricsManager
	Users   UserRoles
}

// Manager runs registered middlewares in weight order. Routes switch middlewares on
// or off by name; each distinct on/off combination is compiled once and reused.
type Manager struct {
	logger      types.Logger
	pending     map[string]types.Middleware
	ordered     []types.Middleware
	nameToIndex map[string]int
	defaultMask uint64
	chains      sync.Map
	finalized   int32
	mu          sync.Mutex
}

func NewManager(logger types.Logger) *Manager {
	return &Manager{
		logger:      logger,
		pending:     make(map[string]types.Middleware),
		nameToIndex: make(map[string]int),
	}
}

// RegisterMiddlewares builds every middleware enabled in config and finalizes the chain.
func (m *Manager) RegisterMiddlewares(config *types.MiddlewaresConfig, deps Dependencies) error {
	if config != nil && config.Enabled {
		builders := []struct {
			name   string
			item   *types.MiddlewareItemConfig
			create func(*types.MiddlewareItemConfig) (types.Middleware, error)
		}{
			{NameRecovery, config.Recovery, func(c *types.MiddlewareItemConfig) (types.Middleware, error) {
				return NewRecoveryMiddleware(c, deps.Logger, deps.Metrics), nil
			}},
			{NameMetadata, config.Metadata, func(c *types.MiddlewareItemConfig) (types.Middleware, error) {
				return NewMetadataMiddleware(c, deps.Logger), nil
			}},
			{NameLogging, config.Logging, func(c *types.MiddlewareItemConfig) (types.Middleware, error) {
				return NewLoggingMiddleware(c, deps.Logger, deps.Metrics), nil
			}},
			{NameCORS, config.CORS, func(c *types.MiddlewareItemConfig) (types.Middleware, error) {
				return NewCORSMiddleware(c, deps.Logger), nil
			}},
			{NameRateLimit, config.RateLimit, func(c *types.MiddlewareItemConfig) (types.Middleware, error) {
				return NewRateLimitMiddleware(deps.Context, c, deps.Logger, deps.Metrics), nil
			}},
			{NameBodyLimit, config.BodyLimit, func(c *types.MiddlewareItemConfig) (types.Middleware, error) {
				return NewBodyLimitMiddleware(c, deps.Logger, deps.Metrics)
			}},
			{NameCompression, config.Compression, func(c *types.MiddlewareItemConfig) (types.Middleware, error) {
				return NewCompressionMiddleware(c, deps.Logger), nil
			}},
			{NameAdmin, config.Admin, func(c *types.MiddlewareItemConfig) (types.Middleware, error) {
				if deps.Users == nil {
					return nil, types.Errorf(types.ErrMiddlewareInvalidType, "admin middleware needs a user lookup")
				}
				return NewAdminMiddleware(c, deps.Users, deps.Logger), nil
			}},
		}

		for _, b := range builders {
			if b.item == nil || !b.item.Enabled {
				continue
			}

			mw, err := b.create(b.item)
			if err != nil {
				return types.WrapError(err, "failed to create "+b.name+" middleware")
			}

			if err := m.Register(mw); err != nil {
				return err
			}

			deps.Logger.Info("Middleware registered",
				zap.String("name", mw.Name()),
				zap.Int("weight", mw.Weight()))
		}
	}

	return m.Finalize()
}

func (m *Manager) Register(middleware types.Middleware) error {
	if middleware == nil {
		return types.ErrMiddlewareInvalidType
	}

	if atomic.LoadInt32(&m.finalized) == 1 {
		return types.Errorf(types.ErrMiddlewareOrderInvalid, "cannot register %s after finalization", middleware.Name())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) >= MaxMiddlewares {
		return types.Errorf(types.ErrMiddlewareOrderInvalid, "maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	m.pending[middleware.Name()] = middleware
	return nil
}

// Finalize fixes the execution order. Two middlewares may not share a weight.
func (m *Manager) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&m.finalized, 0, 1) {
		return types.Errorf(types.ErrMiddlewareOrderInvalid, "configuration already finalized")
	}

	weights := make(map[int]string, len(m.pending))
	for name, mw := range m.pending {
		if existing, exists := weights[mw.Weight()]; exists {
			atomic.StoreInt32(&m.finalized, 0)
			return types.Errorf(types.ErrMiddlewareOrderInvalid, "duplicate weight %d for middlewares '%s' and '%s'", mw.Weight(), existing, name)
		}
		weights[mw.Weight()] = name
	}

	m.ordered = make([]types.Middleware, 0, len(m.pending))
	for _, mw := range m.pending {
		m.ordered = append(m.ordered, mw)
	}
	sort.Slice(m.ordered, func(i, j int) bool {
		return m.ordered[i].Weight() < m.ordered[j].Weight()
	})

	for i, mw := range m.ordered {
		m.nameToIndex[mw.Name()] = i

		if optIn, ok := mw.(types.OptInMiddleware); ok && optIn.OptIn() {
			continue
		}
		m.defaultMask |= 1 << uint(i)
	}

	m.pending = nil
	return nil
}

func (m *Manager) Execute(ctx *types.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if atomic.LoadInt32(&m.finalized) == 0 || len(m.ordered) == 0 {
		handler(ctx)
		return
	}

	chain := m.chainFor(m.maskFor(config))
	if len(chain) == 0 {
		handler(ctx)
		return
	}

	index := 0
	var next func(*types.RequestCtx)
	next = func(ctx *types.RequestCtx) {
		if index >= len(chain) {
			handler(ctx)
			return
		}

		mw := chain[index]
		index++
		mw.Handle(ctx, next, config)
	}

	next(ctx)
}

func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.ordered))
	for _, mw := range m.ordered {
		names = append(names, mw.Name())
	}
	return names
}

func (m *Manager) Stop() error {
	for _, mw := range m.ordered {
		if stopper, ok := mw.(interface{ Stop() error }); ok {
			if err := stopper.Stop(); err != nil {
				m.logger.Warn("Failed to stop middleware",
					zap.String("name", mw.Name()),
					zap.Error(err))
			}
		}
	}
	return nil
}

func (m *Manager) maskFor(config *types.RouteConfig) uint64 {
	mask := m.defaultMask
	if config == nil {
		return mask
	}

	for _, name := range config.Middlewares {
		if index, ok := m.nameToIndex[name]; ok {
			mask |= 1 << uint(index)
		}
	}

	for _, name := range config.DisabledMiddlewares {
		if index, ok := m.nameToIndex[name]; ok {
			mask &^= 1 << uint(index)
		}
	}

	return mask
}

func (m *Manager) chainFor(mask uint64) []types.Middleware {
	if cached, ok := m.chains.Load(mask); ok {
		return cached.([]types.Middleware)
	}

	chain := make([]types.Middleware, 0, len(m.ordered))
	for i, mw := range m.ordered {
		if mask&(1<<uint(i)) != 0 {
			chain = append(chain, mw)
		}
	}

	actual, _ := m.chains.LoadOrStore(mask, chain)
	return actual.([]types.Middleware)
}

func weightOf(name string, config *types.MiddlewareItemConfig) int {
	if config != nil && config.Weight > 0 {
		return config.Weight
	}
	return defaultWeights[name]
}
