package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-shop/types"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func testConfig(t *testing.T, port int) *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "sai-shop",
		Version: "test",
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{Host: "127.0.0.1", Port: port, ShutdownTimeout: 2},
		},
		Logger:   &types.LoggerConfig{Type: "zap", Level: "error"},
		Cache:    &types.CacheConfig{Enabled: true, Type: "memory", DefaultTTL: time.Minute},
		Database: &types.DatabaseConfig{Type: "memory"},
		Cron:     &types.CronConfig{Enabled: true, Timezone: "UTC"},
		Metrics:  &types.MetricsConfig{Enabled: true, Type: "memory"},
		Health:   &types.HealthConfig{Enabled: true, CheckTimeout: time.Second},
		Media:    &types.MediaConfig{Type: "local", Directory: t.TempDir(), PublicURL: "/uploads"},
		Middlewares: &types.MiddlewaresConfig{
			Enabled:  true,
			Recovery: &types.MiddlewareItemConfig{Enabled: true, Weight: 10},
			Metadata: &types.MiddlewareItemConfig{Enabled: true, Weight: 20},
			Admin:    &types.MiddlewareItemConfig{Enabled: true, Weight: 50},
		},
		Shop: &types.ShopConfig{
			ProductsPerPage: 8,
			Currency:        "inr",
			DemoAdminID:     "demo-admin",
			MaxPhotos:       5,
		},
	}
}

func get(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	status, body, err := fasthttp.GetTimeout(nil, url, 2*time.Second)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, sonic.Unmarshal(body, &payload))
	return status, payload
}

func TestServiceLifecycle(t *testing.T) {
	port := freePort(t)
	svc, err := NewServiceFromConfig(context.Background(), testConfig(t, port))
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() { errs <- svc.Start() }()

	require.Eventually(t, svc.IsRunning, 5*time.Second, 20*time.Millisecond)
	base := "http://" + svc.Addr()

	status, health := get(t, base+"/health")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, string(types.StatusHealthy), health["status"])
	checks, ok := health["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, checks, "database")
	assert.Contains(t, checks, "cache")

	status, latest := get(t, base+"/api/v1/product/latest")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, true, latest["success"])

	status, _ = get(t, base+"/api/v1/dashboard/stats?id=demo-admin")
	assert.Equal(t, fasthttp.StatusOK, status)

	status, _ = get(t, base+"/api/v1/dashboard/stats")
	assert.Equal(t, fasthttp.StatusUnauthorized, status)

	require.NoError(t, svc.Stop())
	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.False(t, svc.IsRunning())
	assert.ErrorIs(t, svc.Stop(), types.ErrServiceIsNotRunning)
}

func TestServiceStartTwice(t *testing.T) {
	svc, err := NewServiceFromConfig(context.Background(), testConfig(t, freePort(t)))
	require.NoError(t, err)

	go func() { _ = svc.Start() }()
	require.Eventually(t, svc.IsRunning, 5*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, svc.Start(), types.ErrServerAlreadyRunning)

	require.NoError(t, svc.Stop())
	require.Eventually(t, func() bool { return !svc.IsRunning() }, 10*time.Second, 20*time.Millisecond)
}

func TestNewServiceRejectsMissingConfig(t *testing.T) {
	_, err := NewService(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigInvalidPath)

	_, err = NewService(context.Background(), "/does/not/exist.yml")
	assert.Error(t, err)
}
