package action

import (
	"context"

	"github.com/saiset-co/sai-shop/types"
)

// NewActionBroker builds the order-event dispatcher with the sinks enabled in config.
func NewActionBroker(ctx context.Context, config *types.ActionsConfig, logger types.Logger, metrics types.MetricsManager) (*EventDispatcher, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrActionIsDisabled
	}

	var (
		webhooks  *WebhookManager
		websocket *WebSocketBroker
		err       error
	)

	if config.Webhooks != nil && config.Webhooks.Enabled {
		webhooks, err = NewWebhookManager(ctx, config.Webhooks, logger, metrics)
		if err != nil {
			return nil, types.WrapError(err, "failed to create webhook manager")
		}
	}

	if config.WebSocket != nil && config.WebSocket.Enabled {
		websocket = NewWebSocketBroker(ctx, config.WebSocket, logger, metrics)
	}

	return NewEventDispatcher(ctx, logger, metrics, webhooks, websocket), nil
}
