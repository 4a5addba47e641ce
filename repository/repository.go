package repository

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/saiset-co/sai-shop/types"
)

const (
	CollectionUsers    = "users"
	CollectionProducts = "products"
	CollectionOrders   = "orders"
	CollectionCoupons  = "coupons"
	CollectionReviews  = "reviews"
)

var newestFirst = []types.SortOption{{Field: types.FieldCreatedTime, Direction: types.SortDesc}}

type Repositories struct {
	Users    *Users
	Products *Products
	Orders   *Orders
	Coupons  *Coupons
	Reviews  *Reviews
}

func New(db types.DatabaseManager) *Repositories {
	return &Repositories{
		Users:    &Users{NewCollection[types.User](db, CollectionUsers)},
		Products: &Products{NewCollection[types.Product](db, CollectionProducts)},
		Orders:   &Orders{NewCollection[types.Order](db, CollectionOrders)},
		Coupons:  &Coupons{NewCollection[types.Coupon](db, CollectionCoupons)},
		Reviews:  &Reviews{NewCollection[types.Review](db, CollectionReviews)},
	}
}

// CreatedBetween matches records created in [from, to).
func CreatedBetween(from, to time.Time) map[string]interface{} {
	return map[string]interface{}{
		types.FieldCreatedTime: map[string]interface{}{
			"$gte": from.UnixMilli(),
			"$lt":  to.UnixMilli(),
		},
	}
}

// CreatedSince matches records created at or after from.
func CreatedSince(from time.Time) map[string]interface{} {
	return map[string]interface{}{
		types.FieldCreatedTime: map[string]interface{}{"$gte": from.UnixMilli()},
	}
}

type Users struct {
	*Collection[types.User]
}

// RoleOf reports the role of user id, or ErrNotFound.
func (u *Users) RoleOf(ctx context.Context, id string) (types.Role, error) {
	user, err := u.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (u *Users) All(ctx context.Context) ([]types.User, error) {
	return u.Find(ctx, Query{Sort: newestFirst})
}

func (u *Users) CountByGender(ctx context.Context, gender types.Gender) (int64, error) {
	return u.Count(ctx, map[string]interface{}{"gender": string(gender)})
}

func (u *Users) CountByRole(ctx context.Context, role types.Role) (int64, error) {
	return u.Count(ctx, map[string]interface{}{"role": string(role)})
}

type Products struct {
	*Collection[types.Product]
}

// SearchParams mirrors the public product search. Price is an upper bound; zero disables it.
type SearchParams struct {
	Search   string
	Sort     string
	Category string
	Price    float64
	Page     int
	PerPage  int
}

func (p *Products) Latest(ctx context.Context, limit int) ([]types.Product, error) {
	return p.Find(ctx, Query{Sort: newestFirst, Limit: limit})
}

func (p *Products) All(ctx context.Context) ([]types.Product, error) {
	return p.Find(ctx, Query{Sort: newestFirst})
}

func (p *Products) Categories(ctx context.Context) ([]string, error) {
	return p.Distinct(ctx, "category")
}

// Search returns one page of matching products and the total match count.
func (p *Products) Search(ctx context.Context, params SearchParams) ([]types.Product, int64, error) {
	filter := make(map[string]interface{})

	if params.Search != "" {
		filter["name"] = map[string]interface{}{
			"$regex":   regexp.QuoteMeta(params.Search),
			"$options": "i",
		}
	}
	if params.Price > 0 {
		filter["price"] = map[string]interface{}{"$lte": params.Price}
	}
	if params.Category != "" {
		filter["category"] = strings.ToLower(params.Category)
	}

	sort := newestFirst
	switch params.Sort {
	case "asc":
		sort = []types.SortOption{{Field: "price", Direction: types.SortAsc}}
	case "desc":
		sort = []types.SortOption{{Field: "price", Direction: types.SortDesc}}
	}

	page := params.Page
	if page < 1 {
		page = 1
	}

	return p.FindPage(ctx, Query{
		Filter: filter,
		Sort:   sort,
		Skip:   (page - 1) * params.PerPage,
		Limit:  params.PerPage,
	})
}

func (p *Products) CountByCategory(ctx context.Context, category string) (int64, error) {
	return p.Count(ctx, map[string]interface{}{"category": category})
}

func (p *Products) CountOutOfStock(ctx context.Context) (int64, error) {
	return p.Count(ctx, map[string]interface{}{"stock": 0})
}

type Orders struct {
	*Collection[types.Order]
}

func (o *Orders) All(ctx context.Context) ([]types.Order, error) {
	return o.Find(ctx, Query{Sort: newestFirst})
}

func (o *Orders) ByUser(ctx context.Context, userID string) ([]types.Order, error) {
	return o.Find(ctx, Query{Filter: map[string]interface{}{"user": userID}, Sort: newestFirst})
}

func (o *Orders) Latest(ctx context.Context, limit int) ([]types.Order, error) {
	return o.Find(ctx, Query{Sort: newestFirst, Limit: limit})
}

func (o *Orders) CountByStatus(ctx context.Context, status types.OrderStatus) (int64, error) {
	return o.Count(ctx, map[string]interface{}{"status": string(status)})
}

type Coupons struct {
	*Collection[types.Coupon]
}

func (c *Coupons) ByCode(ctx context.Context, code string) (types.Coupon, error) {
	return c.FindOne(ctx, map[string]interface{}{"code": code})
}

func (c *Coupons) All(ctx context.Context) ([]types.Coupon, error) {
	return c.Find(ctx, Query{Sort: newestFirst})
}

type Reviews struct {
	*Collection[types.Review]
}

func (r *Reviews) ByProduct(ctx context.Context, productID string) ([]types.Review, error) {
	return r.Find(ctx, Query{Filter: map[string]interface{}{"product": productID}, Sort: newestFirst})
}

// ByUserAndProduct finds the review a user left on a product, if any.
func (r *Reviews) ByUserAndProduct(ctx context.Context, userID, productID string) (types.Review, bool, error) {
	review, err := r.FindOne(ctx, map[string]interface{}{"user": userID, "product": productID})
	if types.IsError(err, types.ErrNotFound) {
		return types.Review{}, false, nil
	}
	if err != nil {
		return types.Review{}, false, err
	}
	return review, true, nil
}
