package action

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

const (
	SignatureHeader = "X-Signature"
	EventHeader     = "X-Event"
	MessageIDHeader = "X-Message-ID"

	// AllEvents subscribes a webhook to every action.
	AllEvents = "*"
)

type WebhookState int32

const (
	WebhookStateStopped WebhookState = iota
	WebhookStateRunning
)

// WebhookManager keeps webhook registrations in sqlite and delivers signed
// JSON messages to them.
type WebhookManager struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     types.Logger
	metrics    types.MetricsManager
	db         *sql.DB
	client     *fasthttp.Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	state      atomic.Value
	now        func() time.Time
}

type Webhook struct {
	ID        string            `json:"id"`
	Event     string            `json:"event"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Secret    string            `json:"secret"`
	Enabled   bool              `json:"enabled"`
	CreatedAt time.Time         `json:"created_at"`
}

type WebhookCreateRequest struct {
	Event   string            `json:"event" validate:"required"`
	URL     string            `json:"url" validate:"required,url"`
	Headers map[string]string `json:"headers"`
	Enabled *bool             `json:"enabled"`
}

type WebhookUpdateRequest struct {
	Event   *string           `json:"event"`
	URL     *string           `json:"url" validate:"omitempty,url"`
	Headers map[string]string `json:"headers"`
	Enabled *bool             `json:"enabled"`
}

func NewWebhookManager(ctx context.Context, config *types.WebhooksConfig, logger types.Logger, metrics types.MetricsManager) (*WebhookManager, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	dsn := config.DSN
	if dsn == "" {
		dsn = "./webhooks.db"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(err, "failed to open webhook database")
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	webhookCtx, cancel := context.WithCancel(ctx)

	wm := &WebhookManager{
		ctx:     webhookCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		db:      db,
		client: &fasthttp.Client{
			Name:         "sai-shop-webhook",
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		timeout:    timeout,
		maxRetries: config.MaxRetries,
		backoff:    500 * time.Millisecond,
		now:        time.Now,
	}
	wm.state.Store(WebhookStateStopped)

	return wm, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		url TEXT NOT NULL,
		headers TEXT,
		secret TEXT,
		enabled BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(event, url)
	);
	CREATE INDEX IF NOT EXISTS idx_webhooks_event ON webhooks(event);
	`)
	if err != nil {
		return types.WrapError(err, "failed to create webhooks table")
	}
	return nil
}

func (wm *WebhookManager) Start() error {
	if !wm.state.CompareAndSwap(WebhookStateStopped, WebhookStateRunning) {
		return types.ErrServerAlreadyRunning
	}

	wm.logger.Info("Webhook manager started")
	return nil
}

func (wm *WebhookManager) Stop() error {
	if !wm.state.CompareAndSwap(WebhookStateRunning, WebhookStateStopped) {
		return types.ErrServerNotRunning
	}

	wm.cancel()
	wm.client.CloseIdleConnections()

	if err := wm.db.Close(); err != nil {
		wm.logger.Error("Failed to close webhook database", zap.Error(err))
		return err
	}

	wm.logger.Info("Webhook manager stopped")
	return nil
}

func (wm *WebhookManager) IsRunning() bool {
	return wm.state.Load().(WebhookState) == WebhookStateRunning
}

func (wm *WebhookManager) Create(ctx context.Context, request WebhookCreateRequest) (*Webhook, error) {
	if err := utils.Validate(request); err != nil {
		return nil, err
	}

	var count int
	err := wm.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhooks WHERE event = ? AND url = ?`, request.Event, request.URL).Scan(&count)
	if err != nil {
		return nil, wm.dbError("exists", err)
	}
	if count > 0 {
		return nil, types.Errorf(types.ErrDuplicate, "webhook for %s at %s already exists", request.Event, request.URL)
	}

	webhook := &Webhook{
		ID:        "wh_" + uuid.NewString(),
		Event:     request.Event,
		URL:       request.URL,
		Headers:   request.Headers,
		Secret:    generateSecret(),
		Enabled:   true,
		CreatedAt: wm.now().UTC(),
	}
	if webhook.Headers == nil {
		webhook.Headers = map[string]string{}
	}
	if request.Enabled != nil {
		webhook.Enabled = *request.Enabled
	}

	headers, err := utils.Marshal(webhook.Headers)
	if err != nil {
		return nil, types.WrapError(err, "failed to encode webhook headers")
	}

	_, err = wm.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, event, url, headers, secret, enabled, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		webhook.ID, webhook.Event, webhook.URL, string(headers), webhook.Secret, webhook.Enabled, webhook.CreatedAt)
	if err != nil {
		return nil, wm.dbError("insert", err)
	}

	wm.logger.Info("Webhook created",
		zap.String("id", webhook.ID),
		zap.String("event", webhook.Event),
		zap.String("url", webhook.URL))

	return webhook, nil
}

func (wm *WebhookManager) List(ctx context.Context) ([]*Webhook, error) {
	return wm.query(ctx, `SELECT id, event, url, headers, secret, enabled, created_at FROM webhooks ORDER BY created_at DESC`)
}

// ForEvent returns the enabled webhooks subscribed to event, including wildcard ones.
func (wm *WebhookManager) ForEvent(ctx context.Context, event string) ([]*Webhook, error) {
	return wm.query(ctx,
		`SELECT id, event, url, headers, secret, enabled, created_at FROM webhooks WHERE (event = ? OR event = ?) AND enabled = true`,
		event, AllEvents)
}

func (wm *WebhookManager) Get(ctx context.Context, id string) (*Webhook, error) {
	webhooks, err := wm.query(ctx, `SELECT id, event, url, headers, secret, enabled, created_at FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(webhooks) == 0 {
		return nil, types.Errorf(types.ErrNotFound, "webhook %s", id)
	}
	return webhooks[0], nil
}

func (wm *WebhookManager) Update(ctx context.Context, id string, request WebhookUpdateRequest) (*Webhook, error) {
	if err := utils.Validate(request); err != nil {
		return nil, err
	}

	webhook, err := wm.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if request.Event != nil {
		webhook.Event = *request.Event
	}
	if request.URL != nil {
		webhook.URL = *request.URL
	}
	if request.Headers != nil {
		webhook.Headers = request.Headers
	}
	if request.Enabled != nil {
		webhook.Enabled = *request.Enabled
	}

	headers, err := utils.Marshal(webhook.Headers)
	if err != nil {
		return nil, types.WrapError(err, "failed to encode webhook headers")
	}

	_, err = wm.db.ExecContext(ctx,
		`UPDATE webhooks SET event = ?, url = ?, headers = ?, enabled = ? WHERE id = ?`,
		webhook.Event, webhook.URL, string(headers), webhook.Enabled, webhook.ID)
	if err != nil {
		return nil, wm.dbError("update", err)
	}

	return webhook, nil
}

func (wm *WebhookManager) Delete(ctx context.Context, id string) error {
	result, err := wm.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return wm.dbError("delete", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return wm.dbError("delete", err)
	}
	if affected == 0 {
		return types.Errorf(types.ErrNotFound, "webhook %s", id)
	}

	wm.logger.Info("Webhook deleted", zap.String("id", id))
	return nil
}

// Notify delivers message to every matching webhook. It fails only when all deliveries fail.
func (wm *WebhookManager) Notify(ctx context.Context, message *types.ActionMessage) error {
	if !wm.IsRunning() {
		return types.Errorf(types.ErrActionPublishFailed, "webhook manager is not running")
	}

	webhooks, err := wm.ForEvent(ctx, message.Action)
	if err != nil {
		return err
	}
	if len(webhooks) == 0 {
		return nil
	}

	body, err := utils.Marshal(message)
	if err != nil {
		return types.WrapError(err, "failed to marshal webhook payload")
	}

	var delivered int32
	g, gCtx := errgroup.WithContext(ctx)

	for _, webhook := range webhooks {
		wh := webhook
		g.Go(func() error {
			if err := wm.Deliver(gCtx, wh, message, body); err != nil {
				wm.logger.Warn("Webhook delivery failed",
					zap.String("webhook_id", wh.ID),
					zap.String("url", wh.URL),
					zap.Error(err))
				return nil
			}
			atomic.AddInt32(&delivered, 1)
			return nil
		})
	}
	_ = g.Wait()

	if atomic.LoadInt32(&delivered) == 0 {
		return types.Errorf(types.ErrActionPublishFailed, "all %d webhook deliveries failed for %s", len(webhooks), message.Action)
	}

	return nil
}

// Deliver posts body to a single webhook, retrying up to the configured limit.
func (wm *WebhookManager) Deliver(ctx context.Context, webhook *Webhook, message *types.ActionMessage, body []byte) error {
	var lastErr error

	for attempt := 0; attempt <= wm.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * wm.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		lastErr = wm.post(webhook, message, body)
		wm.recordDelivery(message.Action, lastErr, time.Since(start))

		if lastErr == nil {
			return nil
		}
	}

	return lastErr
}

func (wm *WebhookManager) post(webhook *Webhook, message *types.ActionMessage, body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(webhook.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(EventHeader, message.Action)
	req.Header.Set(MessageIDHeader, message.MessageID)

	for key, value := range webhook.Headers {
		req.Header.Set(key, value)
	}

	if webhook.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(webhook.Secret, body))
	}

	req.SetBody(body)

	if err := wm.client.DoTimeout(req, resp, wm.timeout); err != nil {
		return types.Errorf(types.ErrActionConnectionFailed, "%s: %v", webhook.URL, err)
	}

	if resp.StatusCode() >= fasthttp.StatusBadRequest {
		return types.Errorf(types.ErrActionPublishFailed, "%s returned %d", webhook.URL, resp.StatusCode())
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (wm *WebhookManager) query(ctx context.Context, query string, args ...interface{}) ([]*Webhook, error) {
	rows, err := wm.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wm.dbError("query", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			wm.logger.Error("Failed to close webhook rows", zap.Error(err))
		}
	}()

	webhooks := make([]*Webhook, 0)
	for rows.Next() {
		webhook := &Webhook{}
		var headers sql.NullString

		err := rows.Scan(&webhook.ID, &webhook.Event, &webhook.URL,
			&headers, &webhook.Secret, &webhook.Enabled, &webhook.CreatedAt)
		if err != nil {
			return nil, wm.dbError("scan", err)
		}

		webhook.Headers = map[string]string{}
		if headers.Valid && headers.String != "" {
			if err := utils.Unmarshal([]byte(headers.String), &webhook.Headers); err != nil {
				wm.logger.Warn("Failed to parse webhook headers",
					zap.String("webhook_id", webhook.ID),
					zap.Error(err))
			}
		}

		webhooks = append(webhooks, webhook)
	}

	if err := rows.Err(); err != nil {
		return nil, wm.dbError("rows", err)
	}

	return webhooks, nil
}

func (wm *WebhookManager) dbError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return types.Errorf(types.ErrUpstream, "webhook %s: %v", operation, err)
}

func (wm *WebhookManager) recordDelivery(event string, err error, duration time.Duration) {
	if wm.metrics == nil {
		return
	}

	wm.metrics.Counter("webhook_deliveries_total", map[string]string{
		"event":  event,
		"result": result(err),
	}).Inc()

	wm.metrics.Histogram("webhook_delivery_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 5.0, 10.0, 30.0},
		map[string]string{"event": event},
	).Observe(duration.Seconds())
}

func generateSecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
