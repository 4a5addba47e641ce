package types

type ChangePercent struct {
	Revenue float64 `json:"revenue"`
	Product float64 `json:"product"`
	User    float64 `json:"user"`
	Order   float64 `json:"order"`
}

type DashboardCount struct {
	Revenue float64 `json:"revenue"`
	Product int64   `json:"product"`
	User    int64   `json:"user"`
	Order   int64   `json:"order"`
}

type DashboardChart struct {
	Order   []float64 `json:"order"`
	Revenue []float64 `json:"revenue"`
}

type UserRatio struct {
	Male   int64 `json:"male"`
	Female int64 `json:"female"`
}

type Transaction struct {
	ID       string      `json:"internal_id"`
	Discount float64     `json:"discount"`
	Amount   float64     `json:"amount"`
	Quantity int         `json:"quantity"`
	Status   OrderStatus `json:"status"`
}

// CategoryShare is a single-entry map so the JSON reads {"laptop": 40}.
type CategoryShare map[string]float64

type DashboardStats struct {
	CategoryCount     []CategoryShare `json:"categoryCount"`
	ChangePercent     ChangePercent   `json:"changePercent"`
	Count             DashboardCount  `json:"count"`
	Chart             DashboardChart  `json:"chart"`
	UserRatio         UserRatio       `json:"userRatio"`
	LatestTransaction []Transaction   `json:"latestTransaction"`
}

type OrderFulfillment struct {
	Processing int64 `json:"processing"`
	Shipped    int64 `json:"shipped"`
	Delivered  int64 `json:"delivered"`
}

type StockAvailability struct {
	InStock    int64 `json:"inStock"`
	OutOfStock int64 `json:"outOfStock"`
}

type RevenueDistribution struct {
	NetMargin      float64 `json:"netMargin"`
	Discount       float64 `json:"discount"`
	ProductionCost float64 `json:"productionCost"`
	Burnt          float64 `json:"burnt"`
	MarketingCost  float64 `json:"marketingCost"`
}

type AgeGroups struct {
	Teen  int `json:"teen"`
	Adult int `json:"adult"`
	Old   int `json:"old"`
}

type AdminCustomer struct {
	Admin    int64 `json:"admin"`
	Customer int64 `json:"customer"`
}

type PieCharts struct {
	OrderFulfillment    OrderFulfillment    `json:"orderFullfillment"`
	ProductCategories   []CategoryShare     `json:"productCategories"`
	StockAvailability   StockAvailability   `json:"stockAvailablity"`
	RevenueDistribution RevenueDistribution `json:"revenueDistribution"`
	UsersAgeGroup       AgeGroups           `json:"usersAgeGroup"`
	AdminCustomer       AdminCustomer       `json:"adminCustomer"`
}

type BarCharts struct {
	Users    []float64 `json:"users"`
	Products []float64 `json:"products"`
	Orders   []float64 `json:"orders"`
}

type LineCharts struct {
	Users    []float64 `json:"users"`
	Products []float64 `json:"products"`
	Discount []float64 `json:"discount"`
	Revenue  []float64 `json:"revenue"`
}

type ReviewSummary struct {
	Ratings      int `json:"ratings"`
	NumOfReviews int `json:"numOfReviews"`
}
