package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-shop/repository"
	"github.com/saiset-co/sai-shop/types"
)

const (
	latestTransactions = 4
	marketingShare     = 0.30
)

// Dashboard composes the admin charts from repository queries. Independent
// queries run concurrently and the first failure cancels the rest.
type Dashboard struct {
	repos *repository.Repositories
	clock Clock
}

func NewDashboard(repos *repository.Repositories, clock Clock) *Dashboard {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Dashboard{repos: repos, clock: clock}
}

func (d *Dashboard) Stats(ctx context.Context) (types.DashboardStats, error) {
	now := d.clock.Now()
	thisMonth := repository.CreatedBetween(MonthStart(now, 0), MonthStart(now, 1))
	lastMonth := repository.CreatedBetween(MonthStart(now, -1), MonthStart(now, 0))

	var (
		thisMonthProducts, lastMonthProducts int64
		thisMonthUsers, lastMonthUsers       int64
		productCount, userCount, femaleCount int64
		thisMonthOrders, lastMonthOrders     []types.Order
		allOrders, sixMonthOrders, latest    []types.Order
		categories                           []string
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		thisMonthProducts, err = d.repos.Products.Count(gCtx, thisMonth)
		return err
	})
	g.Go(func() (err error) {
		lastMonthProducts, err = d.repos.Products.Count(gCtx, lastMonth)
		return err
	})
	g.Go(func() (err error) {
		thisMonthUsers, err = d.repos.Users.Count(gCtx, thisMonth)
		return err
	})
	g.Go(func() (err error) {
		lastMonthUsers, err = d.repos.Users.Count(gCtx, lastMonth)
		return err
	})
	g.Go(func() (err error) {
		thisMonthOrders, err = d.repos.Orders.Find(gCtx, repository.Query{Filter: thisMonth})
		return err
	})
	g.Go(func() (err error) {
		lastMonthOrders, err = d.repos.Orders.Find(gCtx, repository.Query{Filter: lastMonth})
		return err
	})
	g.Go(func() (err error) {
		productCount, err = d.repos.Products.Count(gCtx, nil)
		return err
	})
	g.Go(func() (err error) {
		userCount, err = d.repos.Users.Count(gCtx, nil)
		return err
	})
	g.Go(func() (err error) {
		allOrders, err = d.repos.Orders.All(gCtx)
		return err
	})
	g.Go(func() (err error) {
		sixMonthOrders, err = d.repos.Orders.Find(gCtx, repository.Query{Filter: repository.CreatedSince(MonthStart(now, -5))})
		return err
	})
	g.Go(func() (err error) {
		categories, err = d.repos.Products.Categories(gCtx)
		return err
	})
	g.Go(func() (err error) {
		femaleCount, err = d.repos.Users.CountByGender(gCtx, types.GenderFemale)
		return err
	})
	g.Go(func() (err error) {
		latest, err = d.repos.Orders.Latest(gCtx, latestTransactions)
		return err
	})

	if err := g.Wait(); err != nil {
		return types.DashboardStats{}, err
	}

	categoryCount, err := d.categoryShares(ctx, categories, productCount)
	if err != nil {
		return types.DashboardStats{}, err
	}

	transactions := make([]types.Transaction, 0, len(latest))
	for _, order := range latest {
		transactions = append(transactions, types.Transaction{
			ID:       order.ID,
			Discount: order.Discount,
			Amount:   order.Total,
			Quantity: len(order.OrderItems),
			Status:   order.Status,
		})
	}

	return types.DashboardStats{
		CategoryCount: categoryCount,
		ChangePercent: types.ChangePercent{
			Revenue: PercentageChange(sumTotals(thisMonthOrders), sumTotals(lastMonthOrders)),
			Product: PercentageChange(float64(thisMonthProducts), float64(lastMonthProducts)),
			User:    PercentageChange(float64(thisMonthUsers), float64(lastMonthUsers)),
			Order:   PercentageChange(float64(len(thisMonthOrders)), float64(len(lastMonthOrders))),
		},
		Count: types.DashboardCount{
			Revenue: sumTotals(allOrders),
			Product: productCount,
			User:    userCount,
			Order:   int64(len(allOrders)),
		},
		Chart: types.DashboardChart{
			Order:   BucketByMonth(sixMonthOrders, 6, now, nil),
			Revenue: BucketByMonth(sixMonthOrders, 6, now, orderTotal),
		},
		UserRatio: types.UserRatio{
			Male:   userCount - femaleCount,
			Female: femaleCount,
		},
		LatestTransaction: transactions,
	}, nil
}

func (d *Dashboard) Pie(ctx context.Context) (types.PieCharts, error) {
	var (
		processing, shipped, delivered int64
		productCount, outOfStock       int64
		adminCount, customerCount      int64
		categories                     []string
		orders                         []types.Order
		users                          []types.User
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		processing, err = d.repos.Orders.CountByStatus(gCtx, types.OrderProcessing)
		return err
	})
	g.Go(func() (err error) {
		shipped, err = d.repos.Orders.CountByStatus(gCtx, types.OrderShipped)
		return err
	})
	g.Go(func() (err error) {
		delivered, err = d.repos.Orders.CountByStatus(gCtx, types.OrderDelivered)
		return err
	})
	g.Go(func() (err error) {
		categories, err = d.repos.Products.Categories(gCtx)
		return err
	})
	g.Go(func() (err error) {
		productCount, err = d.repos.Products.Count(gCtx, nil)
		return err
	})
	g.Go(func() (err error) {
		outOfStock, err = d.repos.Products.CountOutOfStock(gCtx)
		return err
	})
	g.Go(func() (err error) {
		orders, err = d.repos.Orders.All(gCtx)
		return err
	})
	g.Go(func() (err error) {
		users, err = d.repos.Users.All(gCtx)
		return err
	})
	g.Go(func() (err error) {
		adminCount, err = d.repos.Users.CountByRole(gCtx, types.RoleAdmin)
		return err
	})
	g.Go(func() (err error) {
		customerCount, err = d.repos.Users.CountByRole(gCtx, types.RoleUser)
		return err
	})

	if err := g.Wait(); err != nil {
		return types.PieCharts{}, err
	}

	productCategories, err := d.categoryShares(ctx, categories, productCount)
	if err != nil {
		return types.PieCharts{}, err
	}

	return types.PieCharts{
		OrderFulfillment: types.OrderFulfillment{
			Processing: processing,
			Shipped:    shipped,
			Delivered:  delivered,
		},
		ProductCategories: productCategories,
		StockAvailability: types.StockAvailability{
			InStock:    productCount - outOfStock,
			OutOfStock: outOfStock,
		},
		RevenueDistribution: RevenueBreakdown(orders),
		UsersAgeGroup:       AgeDistribution(users, d.clock.Now()),
		AdminCustomer: types.AdminCustomer{
			Admin:    adminCount,
			Customer: customerCount,
		},
	}, nil
}

func (d *Dashboard) Bar(ctx context.Context) (types.BarCharts, error) {
	now := d.clock.Now()
	sixMonths := repository.Query{Filter: repository.CreatedSince(MonthStart(now, -5))}
	twelveMonths := repository.Query{Filter: repository.CreatedSince(MonthStart(now, -11))}

	var (
		products []types.Product
		users    []types.User
		orders   []types.Order
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		products, err = d.repos.Products.Find(gCtx, sixMonths)
		return err
	})
	g.Go(func() (err error) {
		users, err = d.repos.Users.Find(gCtx, sixMonths)
		return err
	})
	g.Go(func() (err error) {
		orders, err = d.repos.Orders.Find(gCtx, twelveMonths)
		return err
	})

	if err := g.Wait(); err != nil {
		return types.BarCharts{}, err
	}

	return types.BarCharts{
		Products: BucketByMonth(products, 6, now, nil),
		Users:    BucketByMonth(users, 6, now, nil),
		Orders:   BucketByMonth(orders, 12, now, nil),
	}, nil
}

func (d *Dashboard) Line(ctx context.Context) (types.LineCharts, error) {
	now := d.clock.Now()
	twelveMonths := repository.Query{Filter: repository.CreatedSince(MonthStart(now, -11))}

	var (
		products []types.Product
		users    []types.User
		orders   []types.Order
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		products, err = d.repos.Products.Find(gCtx, twelveMonths)
		return err
	})
	g.Go(func() (err error) {
		users, err = d.repos.Users.Find(gCtx, twelveMonths)
		return err
	})
	g.Go(func() (err error) {
		orders, err = d.repos.Orders.Find(gCtx, twelveMonths)
		return err
	})

	if err := g.Wait(); err != nil {
		return types.LineCharts{}, err
	}

	return types.LineCharts{
		Products: BucketByMonth(products, 12, now, nil),
		Users:    BucketByMonth(users, 12, now, nil),
		Discount: BucketByMonth(orders, 12, now, func(o types.Order) float64 { return o.Discount }),
		Revenue:  BucketByMonth(orders, 12, now, orderTotal),
	}, nil
}

// RevenueBreakdown splits gross income into margin and cost components.
// Shipping counts as production cost, tax as burnt, and marketing takes 30% of gross.
func RevenueBreakdown(orders []types.Order) types.RevenueDistribution {
	var gross, discount, production, burnt float64
	for _, order := range orders {
		gross += order.Subtotal
		discount += order.Discount
		production += order.ShippingCharges
		burnt += order.Tax
	}

	marketing := roundHalfUp(gross * marketingShare)

	return types.RevenueDistribution{
		NetMargin:      gross - (discount + production + burnt + marketing),
		Discount:       discount,
		ProductionCost: production,
		Burnt:          burnt,
		MarketingCost:  marketing,
	}
}

// AgeDistribution groups users into teen (<20), adult (20-39) and old (40+).
func AgeDistribution(users []types.User, now time.Time) types.AgeGroups {
	var groups types.AgeGroups
	for _, user := range users {
		switch age := user.AgeAt(now); {
		case age < 20:
			groups.Teen++
		case age < 40:
			groups.Adult++
		default:
			groups.Old++
		}
	}
	return groups
}

func (d *Dashboard) categoryShares(ctx context.Context, categories []string, total int64) ([]types.CategoryShare, error) {
	counts := make([]int64, len(categories))

	g, gCtx := errgroup.WithContext(ctx)
	for i, category := range categories {
		i, category := i, category
		g.Go(func() (err error) {
			counts[i], err = d.repos.Products.CountByCategory(gCtx, category)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return CategoryDistribution(categories, counts, total), nil
}

func orderTotal(o types.Order) float64 {
	return o.Total
}

func sumTotals(orders []types.Order) float64 {
	total := 0.0
	for _, order := range orders {
		total += order.Total
	}
	return total
}
