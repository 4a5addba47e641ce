package client

import (
	"context"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

const paymentIntentsPath = "/v1/payment_intents"

type paymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// PaymentGateway creates payment intents against a Stripe-compatible API.
type PaymentGateway struct {
	client    *HTTPClient
	logger    types.Logger
	secretKey string
}

func NewPaymentGateway(client *HTTPClient, logger types.Logger, secretKey string) *PaymentGateway {
	return &PaymentGateway{
		client:    client,
		logger:    logger,
		secretKey: secretKey,
	}
}

// CreatePaymentIntent takes the amount in the currency's smallest unit and returns the client secret.
func (g *PaymentGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string) (string, error) {
	if amount <= 0 {
		return "", types.Errorf(types.ErrValidation, "Please enter amount")
	}

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)

	args.Set("amount", strconv.FormatInt(amount, 10))
	args.Set("currency", currency)

	response, err := g.client.Do(ctx, Request{
		Method:      fasthttp.MethodPost,
		Path:        paymentIntentsPath,
		Body:        args.QueryString(),
		ContentType: "application/x-www-form-urlencoded",
		Headers: map[string]string{
			fasthttp.HeaderAuthorization: "Bearer " + g.secretKey,
		},
	})
	if err != nil {
		return "", types.Errorf(types.ErrUpstream, "payment intent: %v", err)
	}

	var intent paymentIntent
	if err := utils.Unmarshal(response.Body, &intent); err != nil {
		return "", types.Errorf(types.ErrUpstream, "payment intent response: %v", err)
	}

	if intent.ClientSecret == "" {
		return "", types.Errorf(types.ErrUpstream, "payment intent response has no client secret")
	}

	g.logger.Debug("Payment intent created",
		zap.String("intent", intent.ID),
		zap.Int64("amount", amount),
		zap.String("currency", currency))

	return intent.ClientSecret, nil
}
