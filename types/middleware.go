package types

type MiddlewareManager interface {
	Register(middleware Middleware) error
	Execute(ctx *RequestCtx, handler FastHTTPHandler, config *RouteConfig)
	Stop() error
}

type Middleware interface {
	Handle(ctx *RequestCtx, next func(*RequestCtx), config *RouteConfig)
	Name() string
	Weight() int
}

// OptInMiddleware runs only on routes that name it in RouteConfig.Middlewares.
type OptInMiddleware interface {
	Middleware
	OptIn() bool
}

type MiddlewareEntry struct {
	Name       string
	Middleware Middleware
	Weight     int
}
