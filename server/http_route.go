package server

import (
	"time"

	"github.com/saiset-co/sai-shop/types"
)

const maxMiddlewareSliceSize = 64

type RouteBuilder struct {
	router  *FastHTTPRouter
	method  string
	path    string
	handler types.FastHTTPHandler
	config  *types.RouteConfig
}

func (rb *RouteBuilder) WithMiddlewares(names ...string) types.RouteBuilder {
	rb.config.Middlewares = append(rb.config.Middlewares, names...)
	return rb
}

func (rb *RouteBuilder) WithoutMiddlewares(names ...string) types.RouteBuilder {
	rb.config.DisabledMiddlewares = append(rb.config.DisabledMiddlewares, names...)
	return rb
}

func (rb *RouteBuilder) WithTimeout(duration time.Duration) types.RouteBuilder {
	rb.config.Timeout = duration
	return rb
}

func (rb *RouteBuilder) Finalize() error {
	if len(rb.config.Middlewares) > maxMiddlewareSliceSize ||
		len(rb.config.DisabledMiddlewares) > maxMiddlewareSliceSize {
		return types.Errorf(types.ErrMiddlewareOrderInvalid, "%s %s lists too many middlewares", rb.method, rb.path)
	}

	if rb.handler == nil {
		return types.Errorf(types.ErrHandlerIsNil, "%s %s", rb.method, rb.path)
	}

	configCopy := &types.RouteConfig{
		Middlewares:         append([]string(nil), rb.config.Middlewares...),
		DisabledMiddlewares: append([]string(nil), rb.config.DisabledMiddlewares...),
		Timeout:             rb.config.Timeout,
	}

	rb.router.Add(rb.method, rb.path, rb.handler, configCopy)
	return nil
}
