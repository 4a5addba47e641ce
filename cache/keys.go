package cache

const (
	KeyLatestProducts = "latest-products"
	KeyCategories     = "categories"
	KeyAllProducts    = "all-products"
	KeyAllOrders      = "all-orders"
	KeyAdminStats     = "admin-stats"
	KeyAdminPieCharts = "admin-pie-charts"
	KeyAdminBarCharts = "admin-bar-charts"
	KeyAdminLineChart = "admin-line-charts"
)

func ProductKey(id string) string {
	return "product-" + id
}

func ReviewsKey(productID string) string {
	return "reviews-" + productID
}

func OrderKey(id string) string {
	return "order-" + id
}

func MyOrdersKey(userID string) string {
	return "my-orders-" + userID
}

