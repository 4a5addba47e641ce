package client

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

type ManagerState int32

const (
	ManagerStateStopped ManagerState = iota
	ManagerStateRunning
)

const (
	paymentService = "payment"
	mediaService   = "media"

	defaultPaymentURL = "https://api.stripe.com"
)

var breakerStates = []string{"closed", "half-open", "open", "disabled"}

// Manager owns the outbound clients: the payment gateway and the media store.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	metrics types.MetricsManager
	clients []*HTTPClient
	payment types.PaymentGateway
	media   types.MediaStore
	local   *LocalMediaStore
	state   atomic.Value
}

func NewManager(ctx context.Context, config *types.ServiceConfig, logger types.Logger, metrics types.MetricsManager, opts ...Option) (*Manager, error) {
	managerCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
	}
	m.state.Store(ManagerStateStopped)

	if err := m.initPayment(config.Payment, opts); err != nil {
		cancel()
		return nil, err
	}

	if err := m.initMedia(config.Media, opts); err != nil {
		cancel()
		return nil, err
	}

	return m, nil
}

func (m *Manager) initPayment(config *types.PaymentConfig, opts []Option) error {
	if config == nil || !config.Enabled {
		m.payment = disabledGateway{}
		m.logger.Info("Payment gateway disabled")
		return nil
	}

	clientConfig := config.Client
	if clientConfig.BaseURL == "" {
		clientConfig.BaseURL = defaultPaymentURL
	}

	httpClient := NewHTTPClient(m.ctx, m.logger, paymentService, clientConfig, opts...)
	m.clients = append(m.clients, httpClient)
	m.payment = &instrumentedGateway{
		gateway: NewPaymentGateway(httpClient, m.logger, config.SecretKey),
		manager: m,
		client:  httpClient,
	}

	return nil
}

func (m *Manager) initMedia(config *types.MediaConfig, opts []Option) error {
	if config == nil {
		config = &types.MediaConfig{Type: "local"}
	}

	var store types.MediaStore

	switch config.Type {
	case "remote":
		httpClient := NewHTTPClient(m.ctx, m.logger, mediaService, config.Client, opts...)
		m.clients = append(m.clients, httpClient)
		store = NewRemoteMediaStore(httpClient, m.logger, config.APIKey)
	case "", "local":
		local, err := NewLocalMediaStore(m.logger, config.Directory, config.PublicURL)
		if err != nil {
			return err
		}
		m.local = local
		store = local
	default:
		return types.Errorf(types.ErrValidation, "unknown media type %q", config.Type)
	}

	m.media = &instrumentedMedia{store: store, manager: m}

	return nil
}

func (m *Manager) Payment() types.PaymentGateway {
	return m.payment
}

func (m *Manager) Media() types.MediaStore {
	return m.media
}

// LocalMedia returns the directory store when media is served by this process, nil otherwise.
func (m *Manager) LocalMedia() *LocalMediaStore {
	return m.local
}

func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(ManagerStateStopped, ManagerStateRunning) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("Client manager started", zap.Int("http_clients", len(m.clients)))
	return nil
}

func (m *Manager) Stop() error {
	if !m.state.CompareAndSwap(ManagerStateRunning, ManagerStateStopped) {
		return types.ErrServerNotRunning
	}

	for _, c := range m.clients {
		c.Close()
	}
	m.cancel()

	m.logger.Info("Client manager stopped", zap.Int("clients_closed", len(m.clients)))
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(ManagerState) == ManagerStateRunning
}

func (m *Manager) recordMetric(operation, service string, err error, duration time.Duration) {
	if m.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	m.metrics.Counter("client_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
		"service":   service,
	}).Inc()

	m.metrics.Histogram("client_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 5.0, 10.0, 30.0},
		map[string]string{"operation": operation, "service": service},
	).Observe(duration.Seconds())
}

func (m *Manager) updateBreakerMetrics(client *HTTPClient) {
	if m.metrics == nil || client == nil {
		return
	}

	current := client.BreakerState()
	for _, state := range breakerStates {
		value := 0.0
		if state == current {
			value = 1
		}
		m.metrics.Gauge("http_client_circuit_breaker_status", map[string]string{
			"service": client.Name(),
			"state":   state,
		}).Set(value)
	}
}

type instrumentedGateway struct {
	gateway types.PaymentGateway
	manager *Manager
	client  *HTTPClient
}

func (g *instrumentedGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (string, error) {
	start := time.Now()
	secret, err := g.gateway.CreatePaymentIntent(ctx, amount, currency)
	g.manager.recordMetric("create_payment_intent", paymentService, err, time.Since(start))
	g.manager.updateBreakerMetrics(g.client)
	return secret, err
}

type instrumentedMedia struct {
	store   types.MediaStore
	manager *Manager
}

func (s *instrumentedMedia) Upload(ctx context.Context, name string, data []byte) (types.Photo, error) {
	start := time.Now()
	photo, err := s.store.Upload(ctx, name, data)
	s.manager.recordMetric("upload", mediaService, err, time.Since(start))
	return photo, err
}

func (s *instrumentedMedia) Delete(ctx context.Context, publicIDs ...string) error {
	start := time.Now()
	err := s.store.Delete(ctx, publicIDs...)
	s.manager.recordMetric("delete", mediaService, err, time.Since(start))
	return err
}

type disabledGateway struct{}

func (disabledGateway) CreatePaymentIntent(context.Context, int64, string) (string, error) {
	return "", types.Errorf(types.ErrClientIsDisabled, "payment gateway is not configured")
}
