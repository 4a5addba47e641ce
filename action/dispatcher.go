package action

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

const messageSource = "sai-shop"

// EventDispatcher fans each published message out to in-process subscribers,
// registered webhooks and the websocket broker. Delivery runs in the background;
// Publish never blocks the request that triggered it.
type EventDispatcher struct {
	ctx         context.Context
	cancel      context.CancelFunc
	logger      types.Logger
	metrics     types.MetricsManager
	webhooks    *WebhookManager
	websocket   *WebSocketBroker
	subscribers map[string][]types.ActionHandler
	mu          sync.RWMutex
	inflight    sync.WaitGroup
	running     int32
	now         func() time.Time
}

func NewEventDispatcher(ctx context.Context, logger types.Logger, metrics types.MetricsManager, webhooks *WebhookManager, websocket *WebSocketBroker) *EventDispatcher {
	dispatcherCtx, cancel := context.WithCancel(ctx)

	return &EventDispatcher{
		ctx:         dispatcherCtx,
		cancel:      cancel,
		logger:      logger,
		metrics:     metrics,
		webhooks:    webhooks,
		websocket:   websocket,
		subscribers: make(map[string][]types.ActionHandler),
		now:         time.Now,
	}
}

func (ed *EventDispatcher) Webhooks() *WebhookManager {
	return ed.webhooks
}

func (ed *EventDispatcher) Publish(action string, payload interface{}) error {
	if !ed.IsRunning() {
		ed.recordEvent(action, "dispatcher", "not_running")
		return types.Errorf(types.ErrActionPublishFailed, "dispatcher is not running")
	}

	message := &types.ActionMessage{
		MessageID: uuid.NewString(),
		Action:    action,
		Payload:   payload,
		Timestamp: ed.now().UTC(),
		Source:    messageSource,
	}

	ed.inflight.Add(1)
	go func() {
		defer ed.inflight.Done()
		ed.deliver(message)
	}()

	ed.logger.Debug("Event published",
		zap.String("action", action),
		zap.String("message_id", message.MessageID))

	return nil
}

func (ed *EventDispatcher) Subscribe(action string, handler types.ActionHandler) error {
	if action == "" || handler == nil {
		return types.ErrActionConfigInvalid
	}

	ed.mu.Lock()
	defer ed.mu.Unlock()

	ed.subscribers[action] = append(ed.subscribers[action], handler)
	return nil
}

// Wait blocks until every message published so far has been delivered.
func (ed *EventDispatcher) Wait() {
	ed.inflight.Wait()
}

func (ed *EventDispatcher) Start() error {
	if !atomic.CompareAndSwapInt32(&ed.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	if ed.webhooks != nil {
		if err := ed.webhooks.Start(); err != nil {
			atomic.StoreInt32(&ed.running, 0)
			return types.WrapError(err, "failed to start webhook manager")
		}
	}

	if ed.websocket != nil {
		if err := ed.websocket.Start(); err != nil {
			ed.logger.Error("Failed to start websocket broker", zap.Error(err))
		}
	}

	ed.logger.Info("Event dispatcher started",
		zap.Bool("webhooks", ed.webhooks != nil),
		zap.Bool("websocket", ed.websocket != nil))
	return nil
}

func (ed *EventDispatcher) Stop() error {
	if !atomic.CompareAndSwapInt32(&ed.running, 1, 0) {
		return types.ErrServerNotRunning
	}

	ed.inflight.Wait()
	ed.cancel()

	if ed.websocket != nil {
		if err := ed.websocket.Stop(); err != nil {
			ed.logger.Error("Failed to stop websocket broker", zap.Error(err))
		}
	}

	if ed.webhooks != nil {
		if err := ed.webhooks.Stop(); err != nil {
			ed.logger.Error("Failed to stop webhook manager", zap.Error(err))
		}
	}

	ed.logger.Info("Event dispatcher stopped")
	return nil
}

func (ed *EventDispatcher) IsRunning() bool {
	return atomic.LoadInt32(&ed.running) == 1
}

func (ed *EventDispatcher) RegisterRoutes(router types.HTTPRouter) {
	if ed.webhooks != nil {
		ed.webhooks.RegisterRoutes(router)
	}
}

func (ed *EventDispatcher) deliver(message *types.ActionMessage) {
	ed.mu.RLock()
	handlers := append([]types.ActionHandler(nil), ed.subscribers[message.Action]...)
	ed.mu.RUnlock()

	for _, handler := range handlers {
		ed.recordEvent(message.Action, "subscriber", result(ed.runHandler(handler, message)))
	}

	if ed.websocket != nil {
		err := ed.websocket.Publish(message)
		if err != nil {
			ed.logger.Warn("Websocket publish failed",
				zap.String("action", message.Action),
				zap.Error(err))
		}
		ed.recordEvent(message.Action, "websocket", result(err))
	}

	if ed.webhooks != nil {
		err := ed.webhooks.Notify(ed.ctx, message)
		if err != nil {
			ed.logger.Error("Webhook notification failed",
				zap.String("action", message.Action),
				zap.String("message_id", message.MessageID),
				zap.Error(err))
		}
		ed.recordEvent(message.Action, "webhook", result(err))
	}
}

func (ed *EventDispatcher) runHandler(handler types.ActionHandler, message *types.ActionMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ed.logger.Error("Action handler panicked",
				zap.String("action", message.Action),
				zap.Any("panic", r))
			err = types.Errorf(types.ErrActionPublishFailed, "handler panic: %v", r)
		}
	}()

	return handler(message)
}

func (ed *EventDispatcher) recordEvent(action, sink, result string) {
	if ed.metrics == nil {
		return
	}

	ed.metrics.Counter("action_events_total", map[string]string{
		"action": action,
		"sink":   sink,
		"result": result,
	}).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
