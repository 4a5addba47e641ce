package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

const defaultRetryBackoff = time.Second

// Request describes one outbound call. Body is sent as-is.
type Request struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
	Headers     map[string]string
}

type Response struct {
	StatusCode int
	Body       []byte
}

// HTTPClient is a fasthttp client with bounded retries and an optional circuit breaker.
type HTTPClient struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	name    string
	client  *fasthttp.Client
	config  types.ClientConfig
	breaker *gobreaker.CircuitBreaker
	backoff time.Duration
	state   atomic.Value
}

type Option func(*HTTPClient)

// WithDialer replaces the network dialer. Tests use it with an in-memory listener.
func WithDialer(dial func(addr string) (net.Conn, error)) Option {
	return func(c *HTTPClient) {
		c.client.Dial = dial
	}
}

func WithBackoff(backoff time.Duration) Option {
	return func(c *HTTPClient) {
		c.backoff = backoff
	}
}

func NewHTTPClient(ctx context.Context, logger types.Logger, name string, config types.ClientConfig, opts ...Option) *HTTPClient {
	clientCtx, cancel := context.WithCancel(ctx)

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	c := &HTTPClient{
		ctx:    clientCtx,
		cancel: cancel,
		logger: logger,
		name:   name,
		client: &fasthttp.Client{
			Name:         name,
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
		config:  config,
		backoff: defaultRetryBackoff,
	}

	if config.CircuitBreaker != nil && config.CircuitBreaker.Enabled {
		c.breaker = newCircuitBreaker(name, config.CircuitBreaker, logger)
	}

	for _, opt := range opts {
		opt(c)
	}

	c.state.Store(StateRunning)

	return c
}

func newCircuitBreaker(name string, config *types.CircuitBreakerConfig, logger types.Logger) *gobreaker.CircuitBreaker {
	threshold := config.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenRequests,
		Timeout:     config.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return !IsRetryableStatus(statusErr.StatusCode)
			}
			return err == nil
		},
	})
}

// StatusError is returned for non-2xx answers. 4xx answers other than 408 and 429
// do not count as breaker failures.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", types.ErrClientResponseInvalid, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return types.ErrClientResponseInvalid
}

func (c *HTTPClient) Name() string {
	return c.name
}

// Do sends the request, retrying transport failures and 5xx/408/429 answers.
// Any 2xx response is returned with a nil error.
func (c *HTTPClient) Do(ctx context.Context, request Request) (*Response, error) {
	if !c.IsRunning() {
		return nil, types.ErrClientIsDisabled
	}

	var lastErr error

	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * c.backoff

			select {
			case <-time.After(backoff):
				c.logger.Debug("Retrying request",
					zap.String("service", c.name),
					zap.Int("attempt", attempt),
					zap.Duration("backoff", backoff),
					zap.Error(lastErr))
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.ctx.Done():
				return nil, types.NewErrorf("client shutting down during retry for service: %s", c.name)
			}
		}

		response, err := c.execute(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.Errorf(types.ErrCircuitBreakerOpen, "service %s", c.name)
		}

		if response != nil && !IsRetryableStatus(response.StatusCode) {
			return response, lastErr
		}
	}

	return nil, types.Errorf(types.ErrClientRequestFailed, "all %d attempts failed for service %s: %v", c.config.Retries+1, c.name, lastErr)
}

func (c *HTTPClient) execute(ctx context.Context, request Request) (*Response, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, request)
	}

	var response *Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var err error
		response, err = c.roundTrip(ctx, request)
		return nil, err
	})

	return response, err
}

func (c *HTTPClient) roundTrip(ctx context.Context, request Request) (*Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + request.Path)
	req.Header.SetMethod(request.Method)

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	if request.Body != nil {
		req.SetBody(request.Body)
		if request.ContentType != "" {
			req.Header.SetContentType(request.ContentType)
		}
	}

	timeout := c.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, types.Errorf(types.ErrClientRequestFailed, "%s %s: %v", request.Method, request.Path, err)
	}

	response := &Response{
		StatusCode: resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return response, &StatusError{StatusCode: response.StatusCode, Body: response.Body}
	}

	return response, nil
}

// BreakerState reports the circuit breaker state, "disabled" when none is configured.
func (c *HTTPClient) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

func (c *HTTPClient) Close() {
	if !c.transitionState(StateRunning, StateStopping) {
		return
	}

	c.cancel()
	c.client.CloseIdleConnections()
	c.state.Store(StateStopped)

	c.logger.Debug("HTTP client closed", zap.String("service", c.name))
}

func (c *HTTPClient) IsRunning() bool {
	return c.state.Load().(State) == StateRunning
}

func (c *HTTPClient) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}

func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == fasthttp.StatusTooManyRequests || statusCode == fasthttp.StatusRequestTimeout
}
