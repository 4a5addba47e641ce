package client

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/metrics"
	"github.com/saiset-co/sai-shop/types"
)

func serve(t *testing.T, handler fasthttp.RequestHandler) Option {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Shutdown() })

	return WithDialer(func(string) (net.Conn, error) { return ln.Dial() })
}

func newClient(t *testing.T, config types.ClientConfig, handler fasthttp.RequestHandler) *HTTPClient {
	t.Helper()
	if config.BaseURL == "" {
		config.BaseURL = "http://upstream.test"
	}
	c := NewHTTPClient(context.Background(), logger.NewNop(), "test", config, serve(t, handler), WithBackoff(time.Millisecond))
	t.Cleanup(c.Close)
	return c
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, types.ClientConfig{Retries: 2}, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetBodyString("ok")
	})

	response, err := c.Do(context.Background(), Request{Method: fasthttp.MethodGet, Path: "/ping"})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(response.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, types.ClientConfig{Retries: 3}, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
	})

	response, err := c.Do(context.Background(), Request{Method: fasthttp.MethodGet, Path: "/"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrClientResponseInvalid)
	assert.Equal(t, fasthttp.StatusBadRequest, response.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClientCircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, types.ClientConfig{
		CircuitBreaker: &types.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			RecoveryTimeout:  time.Minute,
		},
	}, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	})

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), Request{Method: fasthttp.MethodGet, Path: "/"})
		require.ErrorIs(t, err, types.ErrClientRequestFailed)
	}

	_, err := c.Do(context.Background(), Request{Method: fasthttp.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, types.ErrCircuitBreakerOpen)
	assert.Equal(t, "open", c.BreakerState())
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPClientClosed(t *testing.T) {
	c := newClient(t, types.ClientConfig{}, func(ctx *fasthttp.RequestCtx) {})
	c.Close()

	_, err := c.Do(context.Background(), Request{Method: fasthttp.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, types.ErrClientIsDisabled)
}

func TestPaymentGatewayCreatesIntent(t *testing.T) {
	c := newClient(t, types.ClientConfig{}, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, paymentIntentsPath, string(ctx.Path()))
		assert.Equal(t, "Bearer sk_test", string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)))
		assert.Equal(t, "45000", string(ctx.PostArgs().Peek("amount")))
		assert.Equal(t, "inr", string(ctx.PostArgs().Peek("currency")))
		ctx.SetBodyString(`{"id":"pi_1","client_secret":"pi_1_secret"}`)
	})

	gateway := NewPaymentGateway(c, logger.NewNop(), "sk_test")

	secret, err := gateway.CreatePaymentIntent(context.Background(), 45000, "inr")
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", secret)

	_, err = gateway.CreatePaymentIntent(context.Background(), 0, "inr")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestPaymentGatewayUpstreamFailure(t *testing.T) {
	c := newClient(t, types.ClientConfig{}, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	})

	_, err := NewPaymentGateway(c, logger.NewNop(), "bad").CreatePaymentIntent(context.Background(), 100, "inr")
	assert.ErrorIs(t, err, types.ErrUpstream)
}

func TestLocalMediaStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalMediaStore(logger.NewNop(), dir, "/uploads/")
	require.NoError(t, err)

	photo, err := store.Upload(context.Background(), "Phone.JPG", []byte("image"))
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(photo.PublicID))
	assert.Equal(t, "/uploads/"+photo.PublicID, photo.URL)

	data, err := os.ReadFile(filepath.Join(dir, photo.PublicID))
	require.NoError(t, err)
	assert.Equal(t, "image", string(data))

	require.NoError(t, store.Delete(context.Background(), photo.PublicID, "missing.png", "../escape"))
	_, err = os.Stat(filepath.Join(dir, photo.PublicID))
	assert.True(t, os.IsNotExist(err))

	_, err = store.Upload(context.Background(), "empty.png", nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRemoteMediaStore(t *testing.T) {
	var deleted atomic.Int32
	c := newClient(t, types.ClientConfig{}, func(ctx *fasthttp.RequestCtx) {
		switch {
		case ctx.IsPost():
			assert.Equal(t, "cover.png", string(ctx.Request.Header.Peek("X-File-Name")))
			ctx.SetBodyString(`{"public_id":"abc","url":"https://cdn.test/abc.png"}`)
		case ctx.IsDelete():
			deleted.Add(1)
			if string(ctx.Path()) == "/media/gone" {
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		}
	})

	store := NewRemoteMediaStore(c, logger.NewNop(), "key")

	photo, err := store.Upload(context.Background(), "/tmp/cover.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, types.Photo{PublicID: "abc", URL: "https://cdn.test/abc.png"}, photo)

	require.NoError(t, store.Delete(context.Background(), "abc", "gone"))
	assert.Equal(t, int32(2), deleted.Load())
}

func TestManagerInstrumentsClients(t *testing.T) {
	m := metrics.NewMemoryMetrics(logger.NewNop())

	config := &types.ServiceConfig{
		Payment: &types.PaymentConfig{
			Enabled:   true,
			SecretKey: "sk",
			Client:    types.ClientConfig{BaseURL: "http://payments.test"},
		},
		Media: &types.MediaConfig{Type: "local", Directory: t.TempDir()},
	}

	manager, err := NewManager(context.Background(), config, logger.NewNop(), m, serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"client_secret":"secret"}`)
	}))
	require.NoError(t, err)
	require.NoError(t, manager.Start())
	t.Cleanup(func() { _ = manager.Stop() })

	secret, err := manager.Payment().CreatePaymentIntent(context.Background(), 100, "inr")
	require.NoError(t, err)
	assert.Equal(t, "secret", secret)
	assert.NotNil(t, manager.LocalMedia())

	snapshot := m.Snapshot()
	assert.Equal(t, 1.0, snapshot["client_operations_total{operation=create_payment_intent,result=success,service=payment}"])
	assert.Equal(t, 1.0, snapshot["http_client_circuit_breaker_status{service=payment,state=disabled}"])
}

func TestManagerPaymentDisabled(t *testing.T) {
	manager, err := NewManager(context.Background(), &types.ServiceConfig{
		Media: &types.MediaConfig{Directory: t.TempDir()},
	}, logger.NewNop(), nil)
	require.NoError(t, err)

	_, err = manager.Payment().CreatePaymentIntent(context.Background(), 100, "inr")
	assert.ErrorIs(t, err, types.ErrClientIsDisabled)
}
