package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidationRequestKeys(t *testing.T) {
	tests := []struct {
		name string
		req  InvalidationRequest
		want []string
	}{
		{
			name: "empty",
			req:  InvalidationRequest{},
			want: []string{},
		},
		{
			name: "product without ids",
			req:  InvalidationRequest{Product: true},
			want: []string{"latest-products", "categories", "all-products"},
		},
		{
			name: "product with ids",
			req:  InvalidationRequest{Product: true, ProductIDs: []string{"a", "b"}},
			want: []string{"latest-products", "categories", "all-products", "product-a", "product-b"},
		},
		{
			name: "review",
			req:  InvalidationRequest{Review: true, ProductIDs: []string{"p1"}},
			want: []string{"reviews-p1"},
		},
		{
			name: "order with scope",
			req:  InvalidationRequest{Order: true, UserID: "u1", OrderID: "o1"},
			want: []string{"all-orders", "my-orders-u1", "order-o1"},
		},
		{
			name: "order without scope",
			req:  InvalidationRequest{Order: true},
			want: []string{"all-orders"},
		},
		{
			name: "admin",
			req:  InvalidationRequest{Admin: true},
			want: []string{"admin-stats", "admin-pie-charts", "admin-bar-charts", "admin-line-charts"},
		},
		{
			name: "combined flags",
			req: InvalidationRequest{
				Product:    true,
				Order:      true,
				Admin:      true,
				ProductIDs: []string{"p1"},
				UserID:     "u1",
			},
			want: []string{
				"latest-products", "categories", "all-products", "product-p1",
				"all-orders", "my-orders-u1",
				"admin-stats", "admin-pie-charts", "admin-bar-charts", "admin-line-charts",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Keys())
		})
	}
}

func TestInvalidationRequestProductKeyCountIsBounded(t *testing.T) {
	ids := []string{"1", "2", "2", "3"}
	keys := InvalidationRequest{Product: true, ProductIDs: ids}.Keys()

	assert.LessOrEqual(t, len(keys), 3+len(ids))
	assert.Len(t, keys, 6)
}

func TestInvalidationRequestProductID(t *testing.T) {
	base := InvalidationRequest{Product: true}
	scoped := base.ProductID("123")

	assert.Empty(t, base.ProductIDs)
	assert.Equal(t, []string{"123"}, scoped.ProductIDs)
}
