package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

var methodIndex = map[string]uint8{
	fasthttp.MethodGet:     0,
	fasthttp.MethodPost:    1,
	fasthttp.MethodPut:     2,
	fasthttp.MethodDelete:  3,
	fasthttp.MethodPatch:   4,
	fasthttp.MethodHead:    5,
	fasthttp.MethodOptions: 6,
}

var methodNames = [...]string{
	fasthttp.MethodGet,
	fasthttp.MethodPost,
	fasthttp.MethodPut,
	fasthttp.MethodDelete,
	fasthttp.MethodPatch,
	fasthttp.MethodHead,
	fasthttp.MethodOptions,
}

// FastHTTPRouter matches literal segments before "{param}" segments, backtracking
// when a literal branch dead-ends. Captured params are set as ctx user values by name.
type FastHTTPRouter struct {
	root          *routeNode
	staticRoutes  map[string]*compiledRoute
	staticFiles   map[string]fasthttp.RequestHandler
	middlewares   types.MiddlewareManager
	pendingRoutes []*RouteBuilder
	mu            sync.RWMutex
}

type routeNode struct {
	staticChildren map[string]*routeNode
	paramChild     *routeNode
	routes         [len(methodNames)]*compiledRoute
}

type compiledRoute struct {
	info       *types.RouteInfo
	paramNames []string
	handler    types.FastHTTPHandler
}

func NewFastHTTPRouter(middlewares types.MiddlewareManager) *FastHTTPRouter {
	return &FastHTTPRouter{
		root:         newRouteNode(),
		staticRoutes: make(map[string]*compiledRoute),
		staticFiles:  make(map[string]fasthttp.RequestHandler),
		middlewares:  middlewares,
	}
}

func newRouteNode() *routeNode {
	return &routeNode{staticChildren: make(map[string]*routeNode)}
}

func (r *FastHTTPRouter) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	methodIdx, exists := methodIndex[method]
	if !exists || handler == nil {
		return
	}

	if config == nil {
		config = &types.RouteConfig{}
	}

	path = normalizePath(path)
	route := &compiledRoute{
		info: &types.RouteInfo{
			Method:  method,
			Path:    path,
			Handler: handler,
			Config:  config,
		},
		handler: withTimeout(handler, config),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !strings.Contains(path, "{") {
		r.staticRoutes[method+":"+path] = route
	}

	node := r.root
	for _, segment := range splitPath(path) {
		if isParam(segment) {
			if node.paramChild == nil {
				node.paramChild = newRouteNode()
			}
			route.paramNames = append(route.paramNames, segment[1:len(segment)-1])
			node = node.paramChild
			continue
		}

		child, ok := node.staticChildren[segment]
		if !ok {
			child = newRouteNode()
			node.staticChildren[segment] = child
		}
		node = child
	}

	node.routes[methodIdx] = route
}

// ServeFiles serves files under root for GET requests whose path starts with prefix.
func (r *FastHTTPRouter) ServeFiles(prefix, root string) {
	prefix = "/" + strings.Trim(prefix, "/")
	fs := &fasthttp.FS{
		Root:               root,
		PathRewrite:        fasthttp.NewPathPrefixStripper(len(prefix)),
		Compress:           false,
		AcceptByteRange:    true,
		GenerateIndexPages: false,
	}

	r.mu.Lock()
	r.staticFiles[prefix+"/"] = fs.NewRequestHandler()
	r.mu.Unlock()
}

func (r *FastHTTPRouter) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Method())
		path := normalizePath(utils.BytesToString(ctx.Path()))

		methodIdx, known := methodIndex[method]
		if !known {
			utils.WriteMessage(ctx, fasthttp.StatusMethodNotAllowed, false, "Method not allowed")
			return
		}

		r.mu.RLock()
		route, params, allowed := r.match(methodIdx, path)
		files := r.filesFor(method, path)
		r.mu.RUnlock()

		switch {
		case route != nil:
			for i, name := range route.paramNames {
				ctx.SetUserValue(name, params[i])
			}
			r.execute(ctx, route.handler, route.info.Config)
		case files != nil:
			r.execute(ctx, types.FastHTTPHandler(files), &types.RouteConfig{})
		case method == fasthttp.MethodOptions && allowed:
			r.execute(ctx, func(ctx *types.RequestCtx) {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
			}, &types.RouteConfig{})
		case allowed:
			utils.WriteMessage(ctx, fasthttp.StatusMethodNotAllowed, false, "Method not allowed")
		default:
			r.execute(ctx, func(ctx *types.RequestCtx) {
				utils.WriteError(ctx, types.Errorf(types.ErrNotFound, "Route not found"))
			}, &types.RouteConfig{})
		}
	}
}

func (r *FastHTTPRouter) execute(ctx *types.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if r.middlewares == nil {
		handler(ctx)
		return
	}
	r.middlewares.Execute(ctx, handler, config)
}

// match returns the route for method, its param values, and whether any
// method is registered for path.
func (r *FastHTTPRouter) match(methodIdx uint8, path string) (*compiledRoute, []string, bool) {
	if route := r.staticRoutes[methodNames[methodIdx]+":"+path]; route != nil {
		return route, nil, true
	}

	var found *compiledRoute
	var params []string
	anyMethod := false

	r.walk(r.root, splitPath(path), nil, func(node *routeNode, values []string) bool {
		if route := node.routes[methodIdx]; route != nil {
			found, params = route, values
			return true
		}
		for _, route := range node.routes {
			if route != nil {
				anyMethod = true
				break
			}
		}
		return false
	})

	return found, params, found != nil || anyMethod
}

// walk visits every node matching segments, literal branches first, until visit returns true.
func (r *FastHTTPRouter) walk(node *routeNode, segments []string, params []string, visit func(*routeNode, []string) bool) bool {
	if len(segments) == 0 {
		return visit(node, params)
	}

	if child, ok := node.staticChildren[segments[0]]; ok {
		if r.walk(child, segments[1:], params, visit) {
			return true
		}
	}

	if node.paramChild != nil && segments[0] != "" {
		next := append(append([]string(nil), params...), segments[0])
		if r.walk(node.paramChild, segments[1:], next, visit) {
			return true
		}
	}

	return false
}

func (r *FastHTTPRouter) filesFor(method, path string) fasthttp.RequestHandler {
	if method != fasthttp.MethodGet && method != fasthttp.MethodHead {
		return nil
	}

	for prefix, handler := range r.staticFiles {
		if strings.HasPrefix(path, prefix) {
			return handler
		}
	}
	return nil
}

func (r *FastHTTPRouter) Route(method string, path string, handler types.FastHTTPHandler) *RouteBuilder {
	rb := &RouteBuilder{
		router:  r,
		method:  method,
		path:    path,
		handler: handler,
		config:  &types.RouteConfig{},
	}

	r.mu.Lock()
	r.pendingRoutes = append(r.pendingRoutes, rb)
	r.mu.Unlock()

	return rb
}

func (r *FastHTTPRouter) Group(prefix string) types.GroupBuilder {
	return &GroupBuilder{
		router: r,
		prefix: prefix,
		config: &types.RouteConfig{},
	}
}

// FinalizePendingRoutes moves every builder-declared route into the routing tree.
func (r *FastHTTPRouter) FinalizePendingRoutes() error {
	r.mu.Lock()
	routes := r.pendingRoutes
	r.pendingRoutes = nil
	r.mu.Unlock()

	failed := 0
	for _, route := range routes {
		if err := route.Finalize(); err != nil {
			failed++
		}
	}

	if failed > 0 {
		return types.Errorf(types.ErrRouteFinalizationFailed, "%d errors occurred", failed)
	}

	return nil
}

func (r *FastHTTPRouter) GetAllRoutes() map[string]*types.RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string]*types.RouteInfo)
	r.collect(r.root, routes)
	return routes
}

// RoutePaths lists "METHOD path" for every registered route, sorted.
func (r *FastHTTPRouter) RoutePaths() []string {
	routes := r.GetAllRoutes()
	paths := make([]string, 0, len(routes))
	for key := range routes {
		paths = append(paths, key)
	}
	sort.Strings(paths)
	return paths
}

func (r *FastHTTPRouter) collect(node *routeNode, routes map[string]*types.RouteInfo) {
	for _, route := range node.routes {
		if route != nil {
			routes[route.info.Method+" "+route.info.Path] = route.info
		}
	}
	for _, child := range node.staticChildren {
		r.collect(child, routes)
	}
	if node.paramChild != nil {
		r.collect(node.paramChild, routes)
	}
}

func (r *FastHTTPRouter) GET(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route(fasthttp.MethodGet, path, handler)
}

func (r *FastHTTPRouter) POST(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route(fasthttp.MethodPost, path, handler)
}

func (r *FastHTTPRouter) PUT(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route(fasthttp.MethodPut, path, handler)
}

func (r *FastHTTPRouter) DELETE(path string, handler types.FastHTTPHandler) types.RouteBuilder {
	return r.Route(fasthttp.MethodDelete, path, handler)
}

func withTimeout(handler types.FastHTTPHandler, config *types.RouteConfig) types.FastHTTPHandler {
	if config.Timeout <= 0 {
		return handler
	}

	timed := fasthttp.TimeoutWithCodeHandler(fasthttp.RequestHandler(handler), config.Timeout,
		`{"success":false,"message":"Request timeout"}`, fasthttp.StatusServiceUnavailable)
	return func(ctx *types.RequestCtx) { timed(ctx) }
}

func isParam(segment string) bool {
	return len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if path[0] != '/' {
		path = "/" + path
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
