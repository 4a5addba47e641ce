package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-shop/action"
	"github.com/saiset-co/sai-shop/analytics"
	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/client"
	"github.com/saiset-co/sai-shop/config"
	"github.com/saiset-co/sai-shop/cron"
	"github.com/saiset-co/sai-shop/database"
	"github.com/saiset-co/sai-shop/handlers"
	"github.com/saiset-co/sai-shop/health"
	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/metrics"
	"github.com/saiset-co/sai-shop/middleware"
	"github.com/saiset-co/sai-shop/repository"
	"github.com/saiset-co/sai-shop/sai"
	"github.com/saiset-co/sai-shop/server"
	"github.com/saiset-co/sai-shop/tls"
	"github.com/saiset-co/sai-shop/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// component is one lifecycle-managed part of the service. A required component
// that fails to start aborts the whole start.
type component struct {
	name     string
	manager  types.LifecycleManager
	required bool
}

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
	logger          types.Logger
	phases          [][]component
	middlewares     *middleware.Manager
	handlers        *handlers.Handlers
	httpServer      *server.FastHTTPServer
	started         []component
	mu              sync.Mutex
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to register config manager")
	}

	s, err := newService(ctx, configManager)
	if err != nil {
		return nil, err
	}
	s.configPath = configPath

	return s, nil
}

// NewServiceFromConfig builds the service from an in-memory configuration.
func NewServiceFromConfig(ctx context.Context, serviceConfig *types.ServiceConfig) (*Service, error) {
	configManager, err := config.NewStaticManager(serviceConfig)
	if err != nil {
		return nil, types.WrapError(err, "failed to register config manager")
	}

	return newService(ctx, configManager)
}

func newService(ctx context.Context, configManager types.ConfigManager) (*Service, error) {
	serviceCtx, cancel := context.WithCancel(ctx)
	container := sai.InitContainer()

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	s.state.Store(StateStopped)

	if err := s.registerProviders(configManager); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	sai.SetContainer(container)
	return s, nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger.Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	s.logger.Info("Starting service")

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		if stopErr := s.stopComponents(); stopErr != nil {
			s.logger.Error("Error while unwinding failed start", zap.Error(stopErr))
		}
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger.Info("Service started successfully", zap.String("address", s.httpServer.Addr()))

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger.Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	s.logger.Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	s.logger.Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// Addr is the bound HTTP address once the service is running.
func (s *Service) Addr() string {
	return s.httpServer.Addr()
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

// startComponents starts each phase concurrently and the phases in order.
// The demo admin is seeded once storage is up and before traffic is served.
func (s *Service) startComponents(ctx context.Context) error {
	for i, phase := range s.phases {
		if err := s.startPhase(ctx, phase); err != nil {
			return err
		}

		if i == 1 {
			if err := s.handlers.SeedDemoAdmin(ctx); err != nil {
				return types.WrapError(err, "failed to seed demo admin")
			}
		}
	}

	s.logger.Info("All components started successfully")
	return nil
}

func (s *Service) startPhase(ctx context.Context, phase []component) error {
	g, gCtx := errgroup.WithContext(ctx)

	for _, c := range phase {
		c := c
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			if err := c.manager.Start(); err != nil {
				if c.required {
					return types.WrapError(err, "failed to start "+c.name)
				}
				s.logger.Error("Failed to start component", zap.String("component", c.name), zap.Error(err))
				return nil
			}

			s.mu.Lock()
			s.started = append(s.started, c)
			s.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	return nil
}

// stopComponents stops phases in reverse. Only components that started are stopped.
func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Stopping service components...")

	s.mu.Lock()
	running := make(map[string]bool, len(s.started))
	for _, c := range s.started {
		running[c.name] = true
	}
	s.started = nil
	s.mu.Unlock()

	var errs []error

	for i := len(s.phases) - 1; i >= 0; i-- {
		if i == 2 {
			if err := s.middlewares.Stop(); err != nil {
				s.logger.Error("Failed to stop middleware manager", zap.Error(err))
				errs = append(errs, err)
			}
		}

		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		for _, c := range s.phases[i] {
			if !running[c.name] {
				continue
			}
			c := c
			g.Go(func() error {
				done := make(chan error, 1)
				go func() { done <- c.manager.Stop() }()

				var err error
				select {
				case err = <-done:
				case <-ctx.Done():
					err = types.NewErrorf("%s stop timeout", c.name)
				}

				if err != nil {
					s.logger.Error("Failed to stop component", zap.String("component", c.name), zap.Error(err))
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if len(errs) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errs)
	}

	s.logger.Info("All components stopped successfully")
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			s.logger.Info("Service context cancelled")
		}

		signal.Stop(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger.Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger.Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger.Info("Service shutdown: context done")
	}
}

// registerProviders builds the component graph. Optional components that are
// disabled in config are left out entirely.
func (s *Service) registerProviders(configManager types.ConfigManager) error {
	ctx := s.ctx
	serviceConfig := configManager.GetConfig()
	s.container.SetConfig(configManager)

	loggerManager, err := logger.NewManager(configManager)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	s.logger = loggerManager
	s.container.SetLogger(loggerManager)

	var (
		metricsManager types.MetricsManager
		healthManager  *health.Manager
		tlsManager     types.TLSManager
		cacheBackend   types.CacheManager
		broker         *action.EventDispatcher
		cronManager    *cron.Manager
	)

	metricsManager, err = metrics.NewManager(ctx, configManager, loggerManager)
	if err != nil && !types.IsError(err, types.ErrMetricsIsDisabled) {
		return types.WrapError(err, "failed to register metrics manager")
	}
	s.container.SetMetrics(metricsManager)

	healthManager, err = health.NewManager(ctx, configManager, loggerManager)
	if err != nil && !types.IsError(err, types.ErrHealthIsDisabled) {
		return types.WrapError(err, "failed to register health manager")
	}

	certManager, err := tls.NewCertManager(ctx, loggerManager, serviceConfig.Server.TLS)
	switch {
	case err == nil:
		tlsManager = certManager
	case !types.IsError(err, types.ErrTLSIsDisabled):
		return types.WrapError(err, "failed to register TLS manager")
	}

	cacheBackend, err = cache.NewCacheManager(ctx, configManager, loggerManager, metricsManager)
	if err != nil && !types.IsError(err, types.ErrCacheIsDisabled) {
		return types.WrapError(err, "failed to register cache manager")
	}

	var defaultTTL time.Duration
	if serviceConfig.Cache != nil {
		defaultTTL = serviceConfig.Cache.DefaultTTL
	}
	store := cache.NewStore(cacheBackend, loggerManager, defaultTTL)
	s.container.SetCache(store)

	db, err := database.NewManager(ctx, configManager, loggerManager, metricsManager)
	if err != nil {
		return types.WrapError(err, "failed to register database")
	}
	repos := repository.New(db)
	s.container.SetDatabase(db)
	s.container.SetRepositories(repos)

	clients, err := client.NewManager(ctx, serviceConfig, loggerManager, metricsManager)
	if err != nil {
		return types.WrapError(err, "failed to register client manager")
	}

	broker, err = action.NewActionBroker(ctx, serviceConfig.Actions, loggerManager, metricsManager)
	if err != nil && !types.IsError(err, types.ErrActionIsDisabled) {
		return types.WrapError(err, "failed to register action broker")
	}

	cronManager, err = cron.NewManager(ctx, serviceConfig.Cron, loggerManager, metricsManager)
	if err != nil && !types.IsError(err, types.ErrCronIsDisabled) {
		return types.WrapError(err, "failed to register cron manager")
	}

	s.middlewares = middleware.NewManager(loggerManager)
	err = s.middlewares.RegisterMiddlewares(serviceConfig.Middlewares, middleware.Dependencies{
		Context: ctx,
		Logger:  loggerManager,
		Metrics: metricsManager,
		Users:   repos.Users,
	})
	if err != nil {
		return types.WrapError(err, "failed to register middleware manager")
	}

	router := server.NewFastHTTPRouter(s.middlewares)
	s.container.SetRouter(router)

	deps := handlers.Dependencies{
		Logger:  loggerManager,
		Repos:   repos,
		Cache:   store,
		Payment: clients.Payment(),
		Media:   clients.Media(),
		Shop:    serviceConfig.Shop,
		Clock:   analytics.SystemClock{},
	}
	if broker != nil {
		deps.Events = broker
		s.container.SetActions(broker)
	}

	s.handlers = handlers.New(deps)
	s.handlers.RegisterRoutes(router)

	if local := clients.LocalMedia(); local != nil {
		router.ServeFiles(local.PublicURL(), local.Directory())
	}

	if metricsManager != nil {
		metricsManager.RegisterRoutes(router)
	}

	if broker != nil {
		broker.RegisterRoutes(router)
	}

	if cronManager != nil {
		s.container.SetCron(cronManager)
		if err := registerJobs(cronManager, store, loggerManager); err != nil {
			return types.WrapError(err, "failed to register cron jobs")
		}
		cronManager.RegisterRoutes(router)
	}

	if healthManager != nil {
		registerHealthChecks(healthManager, store, repos, tlsManager)
		healthManager.RegisterRoutes(router)
	}

	s.httpServer, err = server.NewHTTPServer(ctx, serviceConfig.Server.HTTP, loggerManager, tlsManager, router)
	if err != nil {
		return types.WrapError(err, "failed to register HTTP server")
	}

	infra := []component{{name: "database", manager: db, required: true}}
	if healthManager != nil {
		infra = append(infra, component{name: "health", manager: healthManager})
	}
	if metricsManager != nil {
		infra = append(infra, component{name: "metrics", manager: metricsManager})
	}
	if cacheBackend != nil {
		infra = append(infra, component{name: "cache", manager: cacheBackend})
	}
	if tlsManager != nil {
		infra = append(infra, component{name: "tls", manager: tlsManager, required: true})
	}

	outbound := []component{{name: "clients", manager: clients}}
	if broker != nil {
		outbound = append(outbound, component{name: "actions", manager: broker})
	}

	serving := []component{{name: "http", manager: s.httpServer, required: true}}

	var scheduled []component
	if cronManager != nil {
		scheduled = append(scheduled, component{name: "cron", manager: cronManager})
	}
	if metricsManager != nil {
		collector := metrics.NewCollector(ctx, loggerManager, metricsManager, 15*time.Second)
		registerProbes(collector, store, repos)
		scheduled = append(scheduled, component{name: "collector", manager: collector})
	}

	s.phases = [][]component{
		{{name: "logger", manager: loggerManager, required: true}},
		infra,
		outbound,
		serving,
		scheduled,
	}

	maxBody := int64(serviceConfig.Server.HTTP.MaxRequestBody)
	if maxBody <= 0 {
		maxBody = 32 * 1024 * 1024
	}

	loggerManager.Info("Service assembled",
		zap.String("name", serviceConfig.Name),
		zap.String("version", serviceConfig.Version),
		zap.Strings("middlewares", s.middlewares.Names()),
		zap.String("max_request_body", humanize.IBytes(uint64(maxBody))))

	return nil
}
