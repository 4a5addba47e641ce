package action

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

type BrokerState int32

const (
	BrokerStateStopped BrokerState = iota
	BrokerStateRunning
)

// WebSocketBroker forwards messages to a remote websocket endpoint. It keeps a
// bounded queue and reconnects after failures; messages that do not fit in the
// queue are dropped.
type WebSocketBroker struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	metrics        types.MetricsManager
	url            string
	reconnectDelay time.Duration
	writeTimeout   time.Duration
	dialer         *websocket.Dialer
	queue          chan *types.ActionMessage
	state          atomic.Value
	connected      atomic.Bool
	done           sync.WaitGroup
}

func NewWebSocketBroker(ctx context.Context, config *types.WebSocketConfig, logger types.Logger, metrics types.MetricsManager) *WebSocketBroker {
	reconnectDelay := config.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}

	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	brokerCtx, cancel := context.WithCancel(ctx)

	b := &WebSocketBroker{
		ctx:            brokerCtx,
		cancel:         cancel,
		logger:         logger,
		metrics:        metrics,
		url:            config.URL,
		reconnectDelay: reconnectDelay,
		writeTimeout:   writeTimeout,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		queue:          make(chan *types.ActionMessage, queueSize),
	}
	b.state.Store(BrokerStateStopped)

	return b
}

func (b *WebSocketBroker) Start() error {
	if !b.state.CompareAndSwap(BrokerStateStopped, BrokerStateRunning) {
		return types.ErrServerAlreadyRunning
	}

	b.done.Add(1)
	go b.run()

	b.logger.Info("WebSocket broker started", zap.String("url", b.url))
	return nil
}

func (b *WebSocketBroker) Stop() error {
	if !b.state.CompareAndSwap(BrokerStateRunning, BrokerStateStopped) {
		return types.ErrServerNotRunning
	}

	b.cancel()
	b.done.Wait()

	b.logger.Info("WebSocket broker stopped", zap.Int("dropped_pending", len(b.queue)))
	return nil
}

func (b *WebSocketBroker) IsRunning() bool {
	return b.state.Load().(BrokerState) == BrokerStateRunning
}

func (b *WebSocketBroker) Connected() bool {
	return b.connected.Load()
}

// Publish queues message without blocking.
func (b *WebSocketBroker) Publish(message *types.ActionMessage) error {
	if !b.IsRunning() {
		return types.Errorf(types.ErrActionPublishFailed, "websocket broker is not running")
	}

	select {
	case b.queue <- message:
		return nil
	default:
		b.recordMetric("dropped")
		return types.Errorf(types.ErrActionPublishFailed, "websocket queue is full")
	}
}

func (b *WebSocketBroker) run() {
	defer b.done.Done()

	for {
		conn, _, err := b.dialer.DialContext(b.ctx, b.url, nil)
		if err != nil {
			b.logger.Warn("WebSocket connect failed",
				zap.String("url", b.url),
				zap.Error(err))

			if !b.sleep(b.reconnectDelay) {
				return
			}
			continue
		}

		b.connected.Store(true)
		b.logger.Info("WebSocket connected", zap.String("url", b.url))

		err = b.pump(conn)
		b.connected.Store(false)
		_ = conn.Close()

		if b.ctx.Err() != nil {
			return
		}

		b.logger.Warn("WebSocket connection lost", zap.Error(err))
		if !b.sleep(b.reconnectDelay) {
			return
		}
	}
}

// pump writes queued messages until the connection fails or the broker stops.
// A reader goroutine detects remote closes.
func (b *WebSocketBroker) pump(conn *websocket.Conn) error {
	closed := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	for {
		select {
		case <-b.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(b.writeTimeout))
			return b.ctx.Err()
		case err := <-closed:
			return err
		case message := <-b.queue:
			data, err := utils.Marshal(message)
			if err != nil {
				b.logger.Error("Failed to marshal websocket message",
					zap.String("action", message.Action),
					zap.Error(err))
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				b.requeue(message)
				b.recordMetric("error")
				return err
			}

			b.recordMetric("sent")
		}
	}
}

func (b *WebSocketBroker) requeue(message *types.ActionMessage) {
	select {
	case b.queue <- message:
	default:
		b.recordMetric("dropped")
	}
}

func (b *WebSocketBroker) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-b.ctx.Done():
		return false
	}
}

func (b *WebSocketBroker) recordMetric(result string) {
	if b.metrics == nil {
		return
	}

	b.metrics.Counter("websocket_messages_total", map[string]string{"result": result}).Inc()
}
