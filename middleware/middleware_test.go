package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/metrics"
	"github.com/saiset-co/sai-shop/types"
)

type stubRoles map[string]types.Role

func (s stubRoles) RoleOf(_ context.Context, id string) (types.Role, error) {
	role, ok := s[id]
	if !ok {
		return "", types.Errorf(types.ErrNotFound, "user %s", id)
	}
	return role, nil
}

type traceMiddleware struct {
	name   string
	weight int
	optIn  bool
	trace  *[]string
}

func (m *traceMiddleware) Name() string { return m.name }
func (m *traceMiddleware) Weight() int  { return m.weight }
func (m *traceMiddleware) OptIn() bool  { return m.optIn }

func (m *traceMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	*m.trace = append(*m.trace, m.name)
	next(ctx)
}

func newCtx(method, uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	return ctx
}

func okHandler(ctx *types.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("ok")
}

func TestManagerOrdersByWeightAndHonoursRouteConfig(t *testing.T) {
	var trace []string
	m := NewManager(logger.NewNop())

	require.NoError(t, m.Register(&traceMiddleware{name: "b", weight: 20, trace: &trace}))
	require.NoError(t, m.Register(&traceMiddleware{name: "a", weight: 10, trace: &trace}))
	require.NoError(t, m.Register(&traceMiddleware{name: "guard", weight: 30, optIn: true, trace: &trace}))
	require.NoError(t, m.Finalize())

	m.Execute(newCtx("GET", "/"), okHandler, nil)
	assert.Equal(t, []string{"a", "b"}, trace)

	trace = nil
	m.Execute(newCtx("GET", "/"), okHandler, &types.RouteConfig{Middlewares: []string{"guard"}})
	assert.Equal(t, []string{"a", "b", "guard"}, trace)

	trace = nil
	m.Execute(newCtx("GET", "/"), okHandler, &types.RouteConfig{DisabledMiddlewares: []string{"a"}})
	assert.Equal(t, []string{"b"}, trace)

	assert.Equal(t, []string{"a", "b", "guard"}, m.Names())
	assert.Error(t, m.Register(&traceMiddleware{name: "late", weight: 40, trace: &trace}))
}

func TestManagerRejectsDuplicateWeights(t *testing.T) {
	var trace []string
	m := NewManager(logger.NewNop())

	require.NoError(t, m.Register(&traceMiddleware{name: "a", weight: 10, trace: &trace}))
	require.NoError(t, m.Register(&traceMiddleware{name: "b", weight: 10, trace: &trace}))

	err := m.Finalize()
	assert.ErrorIs(t, err, types.ErrMiddlewareOrderInvalid)
}

func TestRegisterMiddlewaresFromConfig(t *testing.T) {
	m := NewManager(logger.NewNop())

	err := m.RegisterMiddlewares(&types.MiddlewaresConfig{
		Enabled:   true,
		Recovery:  &types.MiddlewareItemConfig{Enabled: true},
		Logging:   &types.MiddlewareItemConfig{Enabled: true},
		Metadata:  &types.MiddlewareItemConfig{Enabled: true},
		BodyLimit: &types.MiddlewareItemConfig{Enabled: false},
		Admin:     &types.MiddlewareItemConfig{Enabled: true},
	}, Dependencies{
		Context: context.Background(),
		Logger:  logger.NewNop(),
		Users:   stubRoles{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{NameRecovery, NameMetadata, NameLogging, NameAdmin}, m.Names())
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	m := metrics.NewMemoryMetrics(logger.NewNop())
	recovery := NewRecoveryMiddleware(nil, logger.NewNop(), m)

	ctx := newCtx("GET", "/boom")
	recovery.Handle(ctx, func(*types.RequestCtx) { panic("boom") }, nil)

	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Internal Server Error")
	assert.Equal(t, 1.0, m.Snapshot()["http_panics_recovered_total{path=/boom}"])
}

func TestMetadataAssignsRequestID(t *testing.T) {
	mw := NewMetadataMiddleware(nil, logger.NewNop())

	ctx := newCtx("GET", "/x?id=u1")
	var seen *RequestMetadata
	mw.Handle(ctx, func(ctx *types.RequestCtx) { seen = MetadataFrom(ctx) }, nil)

	require.NotNil(t, seen)
	assert.NotEmpty(t, seen.RequestID)
	assert.Equal(t, "u1", seen.UserID)
	assert.Equal(t, seen.RequestID, string(ctx.Response.Header.Peek(RequestIDHeader)))

	ctx = newCtx("GET", "/x")
	ctx.Request.Header.Set(RequestIDHeader, "given")
	mw.Handle(ctx, okHandler, nil)
	assert.Equal(t, "given", string(ctx.Response.Header.Peek(RequestIDHeader)))
}

func TestLoggingRecordsRequests(t *testing.T) {
	m := metrics.NewMemoryMetrics(logger.NewNop())
	mw := NewLoggingMiddleware(&types.MiddlewareItemConfig{Params: map[string]interface{}{"log_headers": true}}, logger.NewNop(), m)

	mw.Handle(newCtx("GET", "/x"), okHandler, nil)
	assert.Equal(t, 1.0, m.Snapshot()["http_requests_total{method=GET,status=200}"])
}

func TestBodyLimitRejectsLargeBodies(t *testing.T) {
	mw, err := NewBodyLimitMiddleware(&types.MiddlewareItemConfig{
		Params: map[string]interface{}{"max_body_size": "1KB"},
	}, logger.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), mw.MaxBytes())

	ctx := newCtx("POST", "/upload")
	ctx.Request.SetBody(bytes.Repeat([]byte("a"), 2000))
	mw.Handle(ctx, okHandler, nil)
	assert.Equal(t, fasthttp.StatusRequestEntityTooLarge, ctx.Response.StatusCode())

	ctx = newCtx("POST", "/upload")
	ctx.Request.SetBody([]byte("small"))
	mw.Handle(ctx, okHandler, nil)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	_, err = NewBodyLimitMiddleware(&types.MiddlewareItemConfig{
		Params: map[string]interface{}{"max_body_size": "lots"},
	}, logger.NewNop(), nil)
	assert.ErrorIs(t, err, types.ErrConfigValidateFailed)
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	mw := NewRateLimitMiddleware(context.Background(), &types.MiddlewareItemConfig{
		Params: map[string]interface{}{"requests_per_window": 2, "window": "1h"},
	}, logger.NewNop(), nil)
	t.Cleanup(func() { _ = mw.Stop() })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		ctx := newCtx("GET", "/")
		ctx.Request.Header.Set("X-Real-IP", "10.0.0.1")
		mw.Handle(ctx, okHandler, nil)
		statuses = append(statuses, ctx.Response.StatusCode())
	}
	assert.Equal(t, []int{200, 200, 429}, statuses)

	ctx := newCtx("GET", "/")
	ctx.Request.Header.Set("X-Real-IP", "10.0.0.2")
	mw.Handle(ctx, okHandler, nil)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestCORS(t *testing.T) {
	mw := NewCORSMiddleware(&types.MiddlewareItemConfig{
		Params: map[string]interface{}{"allowed_origins": []string{"https://shop.test", "*.example.com"}},
	}, logger.NewNop())

	ctx := newCtx("GET", "/")
	ctx.Request.Header.Set("Origin", "https://api.example.com")
	mw.Handle(ctx, okHandler, nil)
	assert.Equal(t, "https://api.example.com", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))

	ctx = newCtx("OPTIONS", "/")
	ctx.Request.Header.Set("Origin", "https://shop.test")
	mw.Handle(ctx, okHandler, nil)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.NotEmpty(t, ctx.Response.Header.Peek("Access-Control-Allow-Methods"))

	ctx = newCtx("GET", "/")
	ctx.Request.Header.Set("Origin", "https://evil.test")
	mw.Handle(ctx, okHandler, nil)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestCompressionNegotiates(t *testing.T) {
	mw := NewCompressionMiddleware(&types.MiddlewareItemConfig{
		Params: map[string]interface{}{"threshold": 16},
	}, logger.NewNop())

	payload := strings.Repeat(`{"name":"laptop"}`, 100)
	handler := func(ctx *types.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetBodyString(payload)
	}

	ctx := newCtx("GET", "/")
	ctx.Request.Header.Set("Accept-Encoding", "gzip, br")
	mw.Handle(ctx, handler, nil)
	require.Equal(t, "br", string(ctx.Response.Header.Peek("Content-Encoding")))
	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(ctx.Response.Body())))
	require.NoError(t, err)
	assert.Equal(t, payload, string(decoded))

	ctx = newCtx("GET", "/")
	ctx.Request.Header.Set("Accept-Encoding", "gzip")
	mw.Handle(ctx, handler, nil)
	require.Equal(t, "gzip", string(ctx.Response.Header.Peek("Content-Encoding")))
	reader, err := gzip.NewReader(bytes.NewReader(ctx.Response.Body()))
	require.NoError(t, err)
	decoded, err = io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, payload, string(decoded))

	ctx = newCtx("GET", "/")
	mw.Handle(ctx, handler, nil)
	assert.Empty(t, ctx.Response.Header.Peek("Content-Encoding"))
}

func TestAdminGuard(t *testing.T) {
	mw := NewAdminMiddleware(nil, stubRoles{"boss": types.RoleAdmin, "joe": types.RoleUser}, logger.NewNop())

	cases := []struct {
		uri    string
		status int
		body   string
	}{
		{"/admin", fasthttp.StatusUnauthorized, "Login Required"},
		{"/admin?id=ghost", fasthttp.StatusNotFound, "Invalid Id"},
		{"/admin?id=joe", fasthttp.StatusForbidden, "Unauthorized access"},
		{"/admin?id=boss", fasthttp.StatusOK, "ok"},
	}

	for _, tc := range cases {
		t.Run(tc.uri, func(t *testing.T) {
			ctx := newCtx("GET", tc.uri)
			mw.Handle(ctx, okHandler, nil)
			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.Contains(t, string(ctx.Response.Body()), tc.body)
		})
	}
}
