package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-shop/database"
	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/types"
)

func newTestRepositories(t *testing.T) *Repositories {
	t.Helper()

	db := database.NewMemoryDB(logger.NewNop(), &types.DatabaseConfig{Type: "memory"})
	require.NoError(t, db.Start())
	t.Cleanup(func() { _ = db.Stop() })

	return New(db)
}

func TestCollectionCreateFindSaveDelete(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepositories(t)

	created, err := repos.Products.Create(ctx, types.Product{
		Name:        "Camera",
		Price:       499.99,
		Stock:       4,
		Category:    "camera",
		Description: "mirrorless",
		Photos:      []types.Photo{{PublicID: "p1", URL: "/uploads/p1.jpg"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotZero(t, created.CreatedAt)

	found, err := repos.Products.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, found)

	found.Stock = 2
	found.Name = "Camera II"
	require.NoError(t, repos.Products.Save(ctx, found))

	saved, err := repos.Products.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Stock)
	assert.Equal(t, "Camera II", saved.Name)
	assert.Equal(t, created.CreatedAt, saved.CreatedAt)
	assert.Equal(t, created.Photos, saved.Photos)

	require.NoError(t, repos.Products.DeleteOne(ctx, created.ID))

	_, err = repos.Products.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, repos.Products.DeleteOne(ctx, created.ID), types.ErrNotFound)
}

func TestCollectionFindByEmptyID(t *testing.T) {
	repos := newTestRepositories(t)

	_, err := repos.Users.FindByID(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrInvalidID)
}

func TestCollectionCreateKeepsCallerID(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepositories(t)

	user, err := repos.Users.Create(ctx, types.User{
		Document: types.Document{ID: "uid-1"},
		Name:     "Ann",
		Gender:   types.GenderFemale,
		Role:     types.RoleUser,
	})
	require.NoError(t, err)
	assert.Equal(t, "uid-1", user.ID)

	_, err = repos.Users.Create(ctx, types.User{Document: types.Document{ID: "uid-1"}})
	assert.ErrorIs(t, err, types.ErrDuplicate)

	count, err := repos.Users.CountByGender(ctx, types.GenderFemale)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestProductsSearch(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepositories(t)

	seed := []types.Product{
		{Name: "Gaming Laptop", Price: 1500, Category: "laptop", Stock: 1},
		{Name: "Budget laptop", Price: 400, Category: "laptop", Stock: 0},
		{Name: "Phone (Pro)", Price: 900, Category: "mobile", Stock: 5},
	}
	for _, p := range seed {
		_, err := repos.Products.Create(ctx, p)
		require.NoError(t, err)
	}

	items, total, err := repos.Products.Search(ctx, SearchParams{Search: "LAPTOP", PerPage: 8, Page: 1, Sort: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	assert.Equal(t, "Budget laptop", items[0].Name)

	items, total, err = repos.Products.Search(ctx, SearchParams{Price: 1000, PerPage: 1, Page: 2, Sort: "desc"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	assert.Equal(t, "Budget laptop", items[0].Name)

	_, total, err = repos.Products.Search(ctx, SearchParams{Search: "(pro)", PerPage: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = repos.Products.Search(ctx, SearchParams{Category: "Mobile", PerPage: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	categories, err := repos.Products.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"laptop", "mobile"}, categories)

	outOfStock, err := repos.Products.CountOutOfStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outOfStock)
}

func TestOrdersByUserAndStatus(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepositories(t)

	for _, o := range []types.Order{
		{User: "u1", Status: types.OrderProcessing, Total: 10},
		{User: "u1", Status: types.OrderDelivered, Total: 20},
		{User: "u2", Status: types.OrderProcessing, Total: 30},
	} {
		_, err := repos.Orders.Create(ctx, o)
		require.NoError(t, err)
	}

	mine, err := repos.Orders.ByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	processing, err := repos.Orders.CountByStatus(ctx, types.OrderProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(2), processing)

	recent, err := repos.Orders.Count(ctx, CreatedSince(time.Now().Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), recent)

	old, err := repos.Orders.Count(ctx, CreatedBetween(time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour)))
	require.NoError(t, err)
	assert.Zero(t, old)
}

func TestReviewsByUserAndProduct(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepositories(t)

	_, found, err := repos.Reviews.ByUserAndProduct(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = repos.Reviews.Create(ctx, types.Review{User: "u1", Product: "p1", Rating: 4, Comment: "good"})
	require.NoError(t, err)

	review, found, err := repos.Reviews.ByUserAndProduct(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4, review.Rating)
}
