package types

import (
	"context"
)

type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency string) (string, error)
}

type MediaStore interface {
	Upload(ctx context.Context, name string, data []byte) (Photo, error)
	Delete(ctx context.Context, publicIDs ...string) error
}
