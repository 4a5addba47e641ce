package handlers

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/saiset-co/sai-shop/analytics"
	"github.com/saiset-co/sai-shop/cache"
	"github.com/saiset-co/sai-shop/database"
	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/middleware"
	"github.com/saiset-co/sai-shop/repository"
	"github.com/saiset-co/sai-shop/server"
	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

const adminID = "admin-1"

type stubPayment struct {
	amount   int64
	currency string
}

func (s *stubPayment) CreatePaymentIntent(_ context.Context, amount int64, currency string) (string, error) {
	s.amount = amount
	s.currency = currency
	return "pi_secret", nil
}

type stubMedia struct {
	mu      sync.Mutex
	count   int
	deleted []string
}

func (s *stubMedia) Upload(_ context.Context, name string, _ []byte) (types.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	id := fmt.Sprintf("%d-%s", s.count, name)
	return types.Photo{PublicID: id, URL: "/uploads/" + id}, nil
}

func (s *stubMedia) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted = append(s.deleted, ids...)
	return nil
}

type stubEvents struct {
	mu      sync.Mutex
	actions []string
}

func (s *stubEvents) Start() error    { return nil }
func (s *stubEvents) Stop() error     { return nil }
func (s *stubEvents) IsRunning() bool { return true }

func (s *stubEvents) Publish(action string, _ interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions = append(s.actions, action)
	return nil
}

func (s *stubEvents) Subscribe(string, types.ActionHandler) error { return nil }

type testEnv struct {
	handlers *Handlers
	repos    *repository.Repositories
	backend  *cache.MemoryCache
	client   *fasthttp.HostClient
	payment  *stubPayment
	media    *stubMedia
	events   *stubEvents
}

type response struct {
	status int
	body   map[string]interface{}
}

func (r response) message() string {
	message, _ := r.body["message"].(string)
	return message
}

func newTestEnv(t *testing.T, shop *types.ShopConfig) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	db := database.NewMemoryDB(log, &types.DatabaseConfig{Type: "memory"})
	require.NoError(t, db.Start())
	t.Cleanup(func() { _ = db.Stop() })

	backend, err := cache.NewMemoryCache(ctx, log, nil)
	require.NoError(t, err)
	require.NoError(t, backend.Start())
	t.Cleanup(func() { _ = backend.Stop() })

	repos := repository.New(db)

	manager := middleware.NewManager(log)
	require.NoError(t, manager.RegisterMiddlewares(&types.MiddlewaresConfig{
		Enabled:  true,
		Metadata: &types.MiddlewareItemConfig{Enabled: true},
		Admin:    &types.MiddlewareItemConfig{Enabled: true},
	}, middleware.Dependencies{Context: ctx, Logger: log, Users: repos.Users}))

	if shop == nil {
		shop = &types.ShopConfig{}
	}
	shop.DemoAdminID = adminID

	env := &testEnv{
		repos:   repos,
		backend: backend,
		payment: &stubPayment{},
		media:   &stubMedia{},
		events:  &stubEvents{},
	}

	env.handlers = New(Dependencies{
		Logger:  log,
		Repos:   repos,
		Cache:   cache.NewStore(backend, log, time.Hour),
		Payment: env.payment,
		Media:   env.media,
		Events:  env.events,
		Shop:    shop,
		Clock:   analytics.FixedClock{Time: time.Now()},
	})
	require.NoError(t, env.handlers.SeedDemoAdmin(ctx))

	router := server.NewFastHTTPRouter(manager)
	env.handlers.RegisterRoutes(router)
	require.NoError(t, router.FinalizePendingRoutes())
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: router.Handler()}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	env.client = &fasthttp.HostClient{
		Addr: "shop.test",
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}

	return env
}

func (e *testEnv) request(t *testing.T, method, uri string, body interface{}) response {
	t.Helper()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod(method)
	req.SetRequestURI("http://shop.test" + uri)

	if body != nil {
		data, err := utils.Marshal(body)
		require.NoError(t, err)
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	return e.do(t, req)
}

func (e *testEnv) upload(t *testing.T, method, uri string, fields map[string]string, photos ...string) response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	for _, photo := range photos {
		part, err := writer.CreateFormFile("photos", photo)
		require.NoError(t, err)
		_, err = part.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod(method)
	req.SetRequestURI("http://shop.test" + uri)
	req.Header.SetContentType(writer.FormDataContentType())
	req.SetBody(buf.Bytes())

	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *fasthttp.Request) response {
	t.Helper()

	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(res)
	require.NoError(t, e.client.DoTimeout(req, res, 5*time.Second))

	resp := response{status: res.StatusCode()}
	require.NoError(t, utils.Unmarshal(res.Body(), &resp.body), string(res.Body()))
	return resp
}

func (e *testEnv) cached(t *testing.T, key string) bool {
	t.Helper()

	_, found, err := e.backend.Get(context.Background(), key)
	require.NoError(t, err)
	return found
}

func (e *testEnv) createUser(t *testing.T, id, name string) {
	t.Helper()

	resp := e.request(t, fasthttp.MethodPost, "/api/v1/user/new", map[string]string{
		"_id":    id,
		"name":   name,
		"email":  id + "@example.com",
		"photo":  "https://example.com/" + id + ".png",
		"gender": "female",
		"dob":    "2000-05-17T00:00:00.000Z",
	})
	require.Equal(t, fasthttp.StatusCreated, resp.status, resp.message())
}

func (e *testEnv) createProduct(t *testing.T, name, category string, price float64, stock int) types.Product {
	t.Helper()

	product, err := e.repos.Products.Create(context.Background(), types.Product{
		Name:        name,
		Price:       price,
		Stock:       stock,
		Category:    category,
		Description: name + " description",
	})
	require.NoError(t, err)
	return product
}

func TestUserRegistration(t *testing.T) {
	env := newTestEnv(t, nil)

	env.createUser(t, "u1", "Ann")

	again := env.request(t, fasthttp.MethodPost, "/api/v1/user/new", map[string]string{
		"_id": "u1", "name": "Ann", "email": "u1@example.com", "photo": "p", "gender": "female", "dob": "2000-05-17",
	})
	assert.Equal(t, fasthttp.StatusOK, again.status)
	assert.Equal(t, "Welcome back, Ann", again.message())

	missing := env.request(t, fasthttp.MethodPost, "/api/v1/user/new", map[string]string{"_id": "u2"})
	assert.Equal(t, fasthttp.StatusBadRequest, missing.status)
	assert.Equal(t, "Please add all fields", missing.message())

	got := env.request(t, fasthttp.MethodGet, "/api/v1/user/u1", nil)
	require.Equal(t, fasthttp.StatusOK, got.status)
	user := got.body["user"].(map[string]interface{})
	assert.Equal(t, "2000-05-17", user["dob"])
	assert.Equal(t, "user", user["role"])

	expected := types.User{DOB: "2000-05-17"}.AgeAt(env.handlers.clock.Now())
	assert.EqualValues(t, expected, user["age"])

	unknown := env.request(t, fasthttp.MethodGet, "/api/v1/user/nobody", nil)
	assert.Equal(t, fasthttp.StatusNotFound, unknown.status)
	assert.Equal(t, "User not found", unknown.message())
}

func TestAdminRoutesAreGuarded(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "u1", "Ann")

	tests := []struct {
		name    string
		uri     string
		status  int
		message string
	}{
		{"no id", "/api/v1/user/all", fasthttp.StatusUnauthorized, "Login Required"},
		{"unknown id", "/api/v1/user/all?id=ghost", fasthttp.StatusNotFound, "Invalid Id"},
		{"customer", "/api/v1/user/all?id=u1", fasthttp.StatusForbidden, "Unauthorized access"},
		{"admin", "/api/v1/user/all?id=" + adminID, fasthttp.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.request(t, fasthttp.MethodGet, tt.uri, nil)
			assert.Equal(t, tt.status, resp.status)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.message())
			}
		})
	}

	resp := env.request(t, fasthttp.MethodGet, "/api/v1/user/all?id="+adminID, nil)
	assert.Len(t, resp.body["users"], 2)

	deleted := env.request(t, fasthttp.MethodDelete, "/api/v1/user/u1?id="+adminID, nil)
	assert.Equal(t, fasthttp.StatusOK, deleted.status)
	assert.Equal(t, "User deleted successfully", deleted.message())

	again := env.request(t, fasthttp.MethodDelete, "/api/v1/user/u1?id="+adminID, nil)
	assert.Equal(t, fasthttp.StatusNotFound, again.status)
}

func TestProductCreateInvalidatesListings(t *testing.T) {
	env := newTestEnv(t, nil)

	latest := env.request(t, fasthttp.MethodGet, "/api/v1/product/latest", nil)
	require.Equal(t, fasthttp.StatusOK, latest.status)
	assert.Empty(t, latest.body["products"])
	assert.True(t, env.cached(t, cache.KeyLatestProducts))

	fields := map[string]string{
		"name":        "Laptop",
		"price":       "999.5",
		"stock":       "3",
		"category":    "Electronics",
		"description": "fast",
	}

	denied := env.upload(t, fasthttp.MethodPost, "/api/v1/product/new", fields, "a.png")
	assert.Equal(t, fasthttp.StatusUnauthorized, denied.status)

	noPhoto := env.upload(t, fasthttp.MethodPost, "/api/v1/product/new?id="+adminID, fields)
	assert.Equal(t, fasthttp.StatusBadRequest, noPhoto.status)
	assert.Equal(t, "Product photo is required", noPhoto.message())

	created := env.upload(t, fasthttp.MethodPost, "/api/v1/product/new?id="+adminID, fields, "a.png", "b.png")
	require.Equal(t, fasthttp.StatusCreated, created.status, created.message())
	assert.Equal(t, "Product created successfully", created.message())

	product := created.body["product"].(map[string]interface{})
	assert.Equal(t, "electronics", product["category"])
	assert.Len(t, product["photos"], 2)
	assert.False(t, env.cached(t, cache.KeyLatestProducts))

	latest = env.request(t, fasthttp.MethodGet, "/api/v1/product/latest", nil)
	assert.Len(t, latest.body["products"], 1)

	categories := env.request(t, fasthttp.MethodGet, "/api/v1/product/categories", nil)
	assert.Equal(t, []interface{}{"electronics"}, categories.body["categories"])

	id := product[types.FieldID].(string)
	single := env.request(t, fasthttp.MethodGet, "/api/v1/product/"+id, nil)
	assert.Equal(t, fasthttp.StatusOK, single.status)
	assert.True(t, env.cached(t, cache.ProductKey(id)))

	missing := env.request(t, fasthttp.MethodGet, "/api/v1/product/nope", nil)
	assert.Equal(t, fasthttp.StatusNotFound, missing.status)
	assert.Equal(t, "Product not found", missing.message())
	assert.False(t, env.cached(t, cache.ProductKey("nope")))
}

func TestProductSearchPaginates(t *testing.T) {
	env := newTestEnv(t, &types.ShopConfig{ProductsPerPage: 4})

	for i := 0; i < 10; i++ {
		category := "phone"
		if i%2 == 0 {
			category = "laptop"
		}
		env.createProduct(t, fmt.Sprintf("Item %d", i), category, float64(100+i*10), 1)
	}

	page := env.request(t, fasthttp.MethodGet, "/api/v1/product/all?page=3", nil)
	require.Equal(t, fasthttp.StatusOK, page.status)
	assert.Len(t, page.body["products"], 2)
	assert.EqualValues(t, 3, page.body["totalPage"])

	filtered := env.request(t, fasthttp.MethodGet, "/api/v1/product/all?category=Laptop&price=150&sort=asc", nil)
	require.Equal(t, fasthttp.StatusOK, filtered.status)
	products := filtered.body["products"].([]interface{})
	require.Len(t, products, 3)
	assert.EqualValues(t, 100, products[0].(map[string]interface{})["price"])
	assert.EqualValues(t, 1, filtered.body["totalPage"])

	bad := env.request(t, fasthttp.MethodGet, "/api/v1/product/all?price=cheap", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, bad.status)
}

func TestProductSearchReflectsDeletes(t *testing.T) {
	env := newTestEnv(t, nil)

	product := env.createProduct(t, "Tablet", "tablet", 300, 4)

	found := env.request(t, fasthttp.MethodGet, "/api/v1/product/all?search=Tablet", nil)
	require.Equal(t, fasthttp.StatusOK, found.status)
	assert.Len(t, found.body["products"], 1)

	deleted := env.request(t, fasthttp.MethodDelete, "/api/v1/product/"+product.ID+"?id="+adminID, nil)
	require.Equal(t, fasthttp.StatusOK, deleted.status, deleted.message())

	again := env.request(t, fasthttp.MethodGet, "/api/v1/product/all?search=Tablet", nil)
	require.Equal(t, fasthttp.StatusOK, again.status)
	assert.Empty(t, again.body["products"])
	assert.EqualValues(t, 0, again.body["totalPage"])
}

func TestProductUpdateReplacesPhotos(t *testing.T) {
	env := newTestEnv(t, nil)

	created := env.upload(t, fasthttp.MethodPost, "/api/v1/product/new?id="+adminID, map[string]string{
		"name": "Camera", "price": "250", "stock": "2", "category": "camera", "description": "compact",
	}, "old.png")
	require.Equal(t, fasthttp.StatusCreated, created.status)

	product := created.body["product"].(map[string]interface{})
	id := product[types.FieldID].(string)
	oldPhoto := product["photos"].([]interface{})[0].(map[string]interface{})["public_id"].(string)

	env.request(t, fasthttp.MethodGet, "/api/v1/product/"+id, nil)
	require.True(t, env.cached(t, cache.ProductKey(id)))

	updated := env.upload(t, fasthttp.MethodPut, "/api/v1/product/"+id+"?id="+adminID,
		map[string]string{"price": "199"}, "new.png")
	require.Equal(t, fasthttp.StatusOK, updated.status, updated.message())
	assert.Equal(t, "Product updated successfully", updated.message())
	assert.False(t, env.cached(t, cache.ProductKey(id)))
	assert.Equal(t, []string{oldPhoto}, env.media.deleted)

	stored, err := env.repos.Products.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 199.0, stored.Price)
	assert.Equal(t, "Camera", stored.Name)
	require.Len(t, stored.Photos, 1)
	assert.NotEqual(t, oldPhoto, stored.Photos[0].PublicID)

	deleted := env.request(t, fasthttp.MethodDelete, "/api/v1/product/"+id+"?id="+adminID, nil)
	assert.Equal(t, fasthttp.StatusOK, deleted.status)
	assert.Contains(t, env.media.deleted, stored.Photos[0].PublicID)
}

func TestReviewsRecalculateRatings(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "u1", "Ann")
	env.createUser(t, "u2", "Bob")
	product := env.createProduct(t, "Phone", "phone", 300, 5)
	uri := "/api/v1/product/review/new/" + product.ID

	first := env.request(t, fasthttp.MethodPost, uri+"?id=u1", map[string]interface{}{"comment": "good", "rating": 4})
	require.Equal(t, fasthttp.StatusCreated, first.status, first.message())

	second := env.request(t, fasthttp.MethodPost, uri+"?id=u2", map[string]interface{}{"comment": "meh", "rating": 2})
	require.Equal(t, fasthttp.StatusCreated, second.status)

	reviews := env.request(t, fasthttp.MethodGet, "/api/v1/product/reviews/"+product.ID, nil)
	require.Equal(t, fasthttp.StatusOK, reviews.status)
	assert.EqualValues(t, 3, reviews.body["ratings"])
	assert.EqualValues(t, 2, reviews.body["numOfReviews"])
	assert.True(t, env.cached(t, cache.ReviewsKey(product.ID)))

	revised := env.request(t, fasthttp.MethodPost, uri+"?id=u1", map[string]interface{}{"comment": "great", "rating": 5})
	assert.Equal(t, fasthttp.StatusOK, revised.status)
	assert.False(t, env.cached(t, cache.ReviewsKey(product.ID)))

	stored, err := env.repos.Products.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Ratings)
	assert.Equal(t, 2, stored.NumOfReviews)

	invalid := env.request(t, fasthttp.MethodPost, uri+"?id=u1", map[string]interface{}{"comment": "?", "rating": 9})
	assert.Equal(t, fasthttp.StatusBadRequest, invalid.status)

	anonymous := env.request(t, fasthttp.MethodPost, uri, map[string]interface{}{"rating": 3})
	assert.Equal(t, fasthttp.StatusUnauthorized, anonymous.status)
}

func newOrderBody(user string, items ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"shippingInfo": map[string]interface{}{
			"address": "1 Main St", "city": "Pune", "state": "MH", "country": "India", "pinCode": "411001",
		},
		"orderItems":      items,
		"user":            user,
		"subtotal":        600,
		"tax":             108,
		"shippingCharges": 0,
		"discount":        0,
		"total":           708,
	}
}

func TestOrderLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "u1", "Ann")
	product := env.createProduct(t, "Phone", "phone", 300, 5)
	item := map[string]interface{}{"name": "Phone", "price": 300, "quantity": 2, "productId": product.ID}

	env.request(t, fasthttp.MethodGet, "/api/v1/order/my?id=u1", nil)
	env.request(t, fasthttp.MethodGet, "/api/v1/product/"+product.ID, nil)
	require.True(t, env.cached(t, cache.MyOrdersKey("u1")))
	require.True(t, env.cached(t, cache.ProductKey(product.ID)))

	created := env.request(t, fasthttp.MethodPost, "/api/v1/order/new", newOrderBody("u1", item))
	require.Equal(t, fasthttp.StatusCreated, created.status, created.message())
	assert.Equal(t, "Order created successfully", created.message())
	assert.False(t, env.cached(t, cache.MyOrdersKey("u1")))
	assert.False(t, env.cached(t, cache.ProductKey(product.ID)))

	stored, err := env.repos.Products.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)

	mine := env.request(t, fasthttp.MethodGet, "/api/v1/order/my?id=u1", nil)
	orders := mine.body["orders"].([]interface{})
	require.Len(t, orders, 1)
	orderID := orders[0].(map[string]interface{})[types.FieldID].(string)

	all := env.request(t, fasthttp.MethodGet, "/api/v1/order/all?id="+adminID, nil)
	require.Equal(t, fasthttp.StatusOK, all.status)
	populated := all.body["orders"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Ann", populated["user"].(map[string]interface{})["name"])

	single := env.request(t, fasthttp.MethodGet, "/api/v1/order/"+orderID, nil)
	assert.Equal(t, "processing", single.body["order"].(map[string]interface{})["status"])

	for _, want := range []types.OrderStatus{types.OrderShipped, types.OrderDelivered} {
		resp := env.request(t, fasthttp.MethodPut, "/api/v1/order/"+orderID+"?id="+adminID, nil)
		require.Equal(t, fasthttp.StatusOK, resp.status)

		order, err := env.repos.Orders.FindByID(context.Background(), orderID)
		require.NoError(t, err)
		assert.Equal(t, want, order.Status)
	}
	assert.False(t, env.cached(t, cache.OrderKey(orderID)))

	delivered := env.request(t, fasthttp.MethodPut, "/api/v1/order/"+orderID+"?id="+adminID, nil)
	assert.Equal(t, fasthttp.StatusBadRequest, delivered.status)
	assert.Equal(t, "Order is already delivered", delivered.message())

	deleted := env.request(t, fasthttp.MethodDelete, "/api/v1/order/"+orderID+"?id="+adminID, nil)
	assert.Equal(t, fasthttp.StatusOK, deleted.status)

	missing := env.request(t, fasthttp.MethodGet, "/api/v1/order/"+orderID, nil)
	assert.Equal(t, fasthttp.StatusNotFound, missing.status)
	assert.Equal(t, "Order not found", missing.message())

	assert.Equal(t, []string{
		types.ActionOrderCreated,
		types.ActionOrderStatusChanged,
		types.ActionOrderStatusChanged,
		types.ActionOrderDeleted,
	}, env.events.actions)
}

func TestOrderRejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "u1", "Ann")
	product := env.createProduct(t, "Phone", "phone", 300, 1)

	incomplete := newOrderBody("u1", map[string]interface{}{"name": "Phone", "price": 300, "quantity": 1, "productId": product.ID})
	delete(incomplete, "tax")
	resp := env.request(t, fasthttp.MethodPost, "/api/v1/order/new", incomplete)
	assert.Equal(t, fasthttp.StatusBadRequest, resp.status)
	assert.Equal(t, "Please provide all the required fields", resp.message())

	tooMany := newOrderBody("u1", map[string]interface{}{"name": "Phone", "price": 300, "quantity": 2, "productId": product.ID})
	resp = env.request(t, fasthttp.MethodPost, "/api/v1/order/new", tooMany)
	assert.Equal(t, fasthttp.StatusBadRequest, resp.status)

	unknown := newOrderBody("u1", map[string]interface{}{"name": "Ghost", "price": 1, "quantity": 1, "productId": "ghost"})
	resp = env.request(t, fasthttp.MethodPost, "/api/v1/order/new", unknown)
	assert.Equal(t, fasthttp.StatusNotFound, resp.status)

	orders, err := env.repos.Orders.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)

	stored, err := env.repos.Products.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stock)
	assert.Empty(t, env.events.actions)

	noUser := env.request(t, fasthttp.MethodGet, "/api/v1/order/my", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, noUser.status)
}

func TestReduceStockRestoresAppliedLines(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	phone := env.createProduct(t, "Phone", "phone", 300, 5)
	laptop := env.createProduct(t, "Laptop", "laptop", 900, 2)

	err := env.handlers.reduceStock(ctx, []types.OrderItem{
		{Name: "Phone", Price: 300, Quantity: 2, ProductID: phone.ID},
		{Name: "Laptop", Price: 900, Quantity: 1, ProductID: laptop.ID},
		{Name: "Ghost", Price: 1, Quantity: 1, ProductID: "ghost"},
	})
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrNotFound))

	for id, stock := range map[string]int{phone.ID: 5, laptop.ID: 2} {
		stored, err := env.repos.Products.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, stock, stored.Stock)
	}

	require.NoError(t, env.handlers.reduceStock(ctx, []types.OrderItem{
		{Name: "Phone", Price: 300, Quantity: 2, ProductID: phone.ID},
	}))
	stored, err := env.repos.Products.FindByID(ctx, phone.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stock)
}

func TestUserDeleteInvalidatesOrderViews(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "u1", "Ann")
	product := env.createProduct(t, "Phone", "phone", 300, 5)
	item := map[string]interface{}{"name": "Phone", "price": 300, "quantity": 1, "productId": product.ID}

	created := env.request(t, fasthttp.MethodPost, "/api/v1/order/new", newOrderBody("u1", item))
	require.Equal(t, fasthttp.StatusCreated, created.status, created.message())

	mine := env.request(t, fasthttp.MethodGet, "/api/v1/order/my?id=u1", nil)
	orderID := mine.body["orders"].([]interface{})[0].(map[string]interface{})[types.FieldID].(string)

	all := env.request(t, fasthttp.MethodGet, "/api/v1/order/all?id="+adminID, nil)
	require.Equal(t, fasthttp.StatusOK, all.status)
	env.request(t, fasthttp.MethodGet, "/api/v1/order/"+orderID, nil)

	for _, key := range []string{cache.KeyAllOrders, cache.MyOrdersKey("u1"), cache.OrderKey(orderID)} {
		require.True(t, env.cached(t, key), key)
	}

	deleted := env.request(t, fasthttp.MethodDelete, "/api/v1/user/u1?id="+adminID, nil)
	require.Equal(t, fasthttp.StatusOK, deleted.status, deleted.message())

	for _, key := range []string{cache.KeyAllOrders, cache.MyOrdersKey("u1"), cache.OrderKey(orderID)} {
		assert.False(t, env.cached(t, key), key)
	}

	all = env.request(t, fasthttp.MethodGet, "/api/v1/order/all?id="+adminID, nil)
	populated := all.body["orders"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "", populated["user"].(map[string]interface{})["name"])
}

func TestPaymentIntent(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.request(t, fasthttp.MethodPost, "/api/v1/payment/create", map[string]interface{}{"amount": 12.5})
	require.Equal(t, fasthttp.StatusCreated, resp.status)
	assert.Equal(t, "pi_secret", resp.body["clientSecret"])
	assert.Equal(t, int64(1250), env.payment.amount)
	assert.Equal(t, "inr", env.payment.currency)

	invalid := env.request(t, fasthttp.MethodPost, "/api/v1/payment/create", map[string]interface{}{"amount": 0})
	assert.Equal(t, fasthttp.StatusBadRequest, invalid.status)
	assert.Equal(t, "Please provide a valid amount", invalid.message())
}

func TestCoupons(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := "?id=" + adminID

	created := env.request(t, fasthttp.MethodPost, "/api/v1/payment/coupon/new"+admin, map[string]interface{}{"code": "SAVE10", "amount": 10})
	require.Equal(t, fasthttp.StatusCreated, created.status, created.message())
	id := created.body["coupon"].(map[string]interface{})[types.FieldID].(string)

	duplicate := env.request(t, fasthttp.MethodPost, "/api/v1/payment/coupon/new"+admin, map[string]interface{}{"code": "SAVE10", "amount": 5})
	assert.Equal(t, fasthttp.StatusConflict, duplicate.status)

	discount := env.request(t, fasthttp.MethodGet, "/api/v1/payment/discount?code=SAVE10", nil)
	assert.EqualValues(t, 10, discount.body["discount"])

	invalid := env.request(t, fasthttp.MethodGet, "/api/v1/payment/discount?code=NOPE", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, invalid.status)
	assert.Equal(t, "Invalid Coupon Code", invalid.message())

	updated := env.request(t, fasthttp.MethodPut, "/api/v1/payment/coupon/"+id+admin, map[string]interface{}{"code": "SAVE20", "amount": 20})
	require.Equal(t, fasthttp.StatusOK, updated.status)
	assert.Equal(t, "Coupon updated successfully", updated.message())

	got := env.request(t, fasthttp.MethodGet, "/api/v1/payment/coupon/"+id+admin, nil)
	assert.Equal(t, "SAVE20", got.body["coupon"].(map[string]interface{})["code"])

	all := env.request(t, fasthttp.MethodGet, "/api/v1/payment/coupon/all"+admin, nil)
	assert.Len(t, all.body["coupons"], 1)

	customer := env.request(t, fasthttp.MethodGet, "/api/v1/payment/coupon/all", nil)
	assert.Equal(t, fasthttp.StatusUnauthorized, customer.status)

	deleted := env.request(t, fasthttp.MethodDelete, "/api/v1/payment/coupon/"+id+admin, nil)
	assert.Equal(t, fasthttp.StatusOK, deleted.status)

	missing := env.request(t, fasthttp.MethodGet, "/api/v1/payment/coupon/"+id+admin, nil)
	assert.Equal(t, fasthttp.StatusNotFound, missing.status)
	assert.Equal(t, "Invalid Coupon ID", missing.message())
}

func TestDashboardIsCachedUntilInvalidated(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "u1", "Ann")
	env.createProduct(t, "Phone", "phone", 300, 0)

	routes := map[string]string{
		"/api/v1/dashboard/stats": cache.KeyAdminStats,
		"/api/v1/dashboard/pie":   cache.KeyAdminPieCharts,
		"/api/v1/dashboard/bar":   cache.KeyAdminBarCharts,
		"/api/v1/dashboard/line":  cache.KeyAdminLineChart,
	}

	for uri, key := range routes {
		resp := env.request(t, fasthttp.MethodGet, uri+"?id="+adminID, nil)
		require.Equal(t, fasthttp.StatusOK, resp.status, uri)
		assert.True(t, env.cached(t, key), key)
	}

	stats := env.request(t, fasthttp.MethodGet, "/api/v1/dashboard/stats?id="+adminID, nil)
	count := stats.body["stats"].(map[string]interface{})["count"].(map[string]interface{})
	assert.EqualValues(t, 2, count["user"])
	assert.EqualValues(t, 1, count["product"])

	env.createUser(t, "u2", "Bob")
	for _, key := range routes {
		assert.False(t, env.cached(t, key), key)
	}

	denied := env.request(t, fasthttp.MethodGet, "/api/v1/dashboard/stats?id=u1", nil)
	assert.Equal(t, fasthttp.StatusForbidden, denied.status)
}
