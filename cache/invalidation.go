package cache

// InvalidationRequest names the domains touched by a mutation. Flags are
// independent; every set flag contributes its keys to one batch delete.
type InvalidationRequest struct {
	Product    bool
	Order      bool
	Admin      bool
	Review     bool
	ProductIDs []string
	OrderID    string
	UserID     string
}

// ProductID scopes the request to a single product.
func (r InvalidationRequest) ProductID(id string) InvalidationRequest {
	r.ProductIDs = append(append([]string(nil), r.ProductIDs...), id)
	return r
}

// Keys expands the request into the distinct cache keys it purges, in a stable order.
func (r InvalidationRequest) Keys() []string {
	seen := make(map[string]struct{})
	keys := make([]string, 0, 8)

	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	if r.Review {
		for _, id := range r.ProductIDs {
			add(ReviewsKey(id))
		}
	}

	if r.Product {
		add(KeyLatestProducts)
		add(KeyCategories)
		add(KeyAllProducts)
		for _, id := range r.ProductIDs {
			add(ProductKey(id))
		}
	}

	if r.Order {
		add(KeyAllOrders)
		if r.UserID != "" {
			add(MyOrdersKey(r.UserID))
		}
		if r.OrderID != "" {
			add(OrderKey(r.OrderID))
		}
	}

	if r.Admin {
		add(KeyAdminStats)
		add(KeyAdminPieCharts)
		add(KeyAdminBarCharts)
		add(KeyAdminLineChart)
	}

	return keys
}
