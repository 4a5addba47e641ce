package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/saiset-co/sai-shop/config"
	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/types"
)

func newManager(t *testing.T, health *types.HealthConfig) (*Manager, error) {
	t.Helper()
	cfg, err := config.NewStaticManager(&types.ServiceConfig{
		Name:     "sai-shop",
		Version:  "test",
		Server:   &types.ServerConfig{HTTP: &types.HTTPConfig{Host: "127.0.0.1", Port: 4000}},
		Database: &types.DatabaseConfig{Type: "memory"},
		Shop:     &types.ShopConfig{ProductsPerPage: 8, Currency: "inr", MaxPhotos: 5},
		Health:   health,
	})
	require.NoError(t, err)
	return NewManager(context.Background(), cfg, logger.NewNop())
}

func started(t *testing.T) *Manager {
	t.Helper()
	hm, err := newManager(t, &types.HealthConfig{Enabled: true, CheckTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, hm.Start())
	t.Cleanup(func() { _ = hm.Stop() })
	return hm
}

// call serves handler once through an in-memory fasthttp.Server.
func call(t *testing.T, handler func(*types.RequestCtx)) *fasthttp.Response {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	client := &fasthttp.HostClient{
		Addr: "health.test",
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI("http://health.test/health")

	resp := &fasthttp.Response{}
	require.NoError(t, client.DoTimeout(req, resp, 2*time.Second))
	return resp
}

func healthy(context.Context) types.HealthCheck {
	return types.HealthCheck{Status: types.StatusHealthy}
}

func failing(context.Context) types.HealthCheck {
	return types.HealthCheck{Status: types.StatusUnhealthy, Message: "connection refused"}
}

func TestDisabledHealthManager(t *testing.T) {
	_, err := newManager(t, &types.HealthConfig{Enabled: false})
	assert.ErrorIs(t, err, types.ErrHealthIsDisabled)
}

func TestCheckStatuses(t *testing.T) {
	tests := []struct {
		name     string
		required types.HealthChecker
		optional types.HealthChecker
		want     types.HealthStatus
	}{
		{"all healthy", healthy, healthy, types.StatusHealthy},
		{"optional failing", healthy, failing, types.StatusDegraded},
		{"required failing", failing, healthy, types.StatusUnhealthy},
		{"both failing", failing, failing, types.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := started(t)
			hm.RegisterChecker("database", tt.required)
			hm.RegisterOptionalChecker("cache", tt.optional)

			report := hm.Check(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, 2, report.Summary.Total)
			assert.Equal(t, "database", report.Checks["database"].Name)
			assert.True(t, report.Checks["cache"].Optional)
		})
	}
}

func TestCheckRecoversPanicsAndTimeouts(t *testing.T) {
	hm := started(t)
	hm.RegisterChecker("panics", func(context.Context) types.HealthCheck {
		panic("boom")
	})
	hm.RegisterOptionalChecker("slow", func(ctx context.Context) types.HealthCheck {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	report := hm.Check(context.Background())
	assert.Equal(t, types.StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["panics"].Message, "boom")
	assert.Equal(t, "Health check timeout", report.Checks["slow"].Message)
	assert.Equal(t, 1, report.Summary.Unhealthy)
	assert.Equal(t, 1, report.Summary.Degraded)
}

func TestHealthEndpoint(t *testing.T) {
	hm := started(t)
	hm.RegisterChecker("database", healthy)
	hm.RegisterOptionalChecker("cache", failing)

	resp := call(t, hm.handleHealth)
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), `"degraded"`)

	hm.RegisterChecker("database", failing)
	resp = call(t, hm.handleHealth)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, resp.StatusCode())

	resp = call(t, hm.handleLive)
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), `"alive"`)
}

func TestStoppedManagerRefusesRequests(t *testing.T) {
	hm, err := newManager(t, &types.HealthConfig{Enabled: true})
	require.NoError(t, err)

	resp := call(t, hm.handleHealth)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, resp.StatusCode())
	assert.JSONEq(t, `{"success":false,"message":"health manager is not running"}`, string(resp.Body()))

	resp = call(t, hm.handleVersion)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, resp.StatusCode())

	require.NoError(t, hm.Start())
	require.NoError(t, hm.Stop())
	assert.Error(t, hm.Stop())
}
