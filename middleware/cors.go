package middleware

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

var optionsMethod = []byte(fasthttp.MethodOptions)

type CORSMiddleware struct {
	logger           types.Logger
	corsConfig       *CORSConfig
	weight           int
	allowsAll        bool
	allowedOrigins   map[string]bool
	wildcardDomains  []string
	allowedMethods   string
	allowedHeaders   string
	exposedHeaders   string
	maxAge           string
	allowCredentials bool
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

func NewCORSMiddleware(config *types.MiddlewareItemConfig, logger types.Logger) *CORSMiddleware {
	var corsConfig = &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         86400,
	}

	if config != nil && config.Params != nil {
		err := utils.UnmarshalConfig(config.Params, corsConfig)
		if err != nil {
			logger.Error("Failed to unmarshal CORS middleware config", zap.Error(err))
		}
	}

	c := &CORSMiddleware{
		logger:           logger,
		corsConfig:       corsConfig,
		weight:           weightOf(NameCORS, config),
		allowedOrigins:   make(map[string]bool),
		allowedMethods:   strings.Join(corsConfig.AllowedMethods, ", "),
		allowedHeaders:   strings.Join(corsConfig.AllowedHeaders, ", "),
		exposedHeaders:   strings.Join(corsConfig.ExposedHeaders, ", "),
		maxAge:           strconv.Itoa(corsConfig.MaxAge),
		allowCredentials: corsConfig.AllowCredentials,
	}

	for _, origin := range corsConfig.AllowedOrigins {
		switch {
		case origin == "*":
			c.allowsAll = true
		case strings.HasPrefix(origin, "*."):
			c.wildcardDomains = append(c.wildcardDomains, strings.TrimPrefix(origin, "*"))
		default:
			c.allowedOrigins[origin] = true
		}
	}

	return c
}

func (c *CORSMiddleware) Name() string { return NameCORS }
func (c *CORSMiddleware) Weight() int  { return c.weight }

func (c *CORSMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin == "" {
		next(ctx)
		return
	}

	if !c.originAllowed(origin) {
		c.logger.Warn("CORS request blocked",
			zap.String("origin", origin),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()))

		utils.WriteError(ctx, types.Errorf(types.ErrForbidden, "Origin not allowed"))
		return
	}

	c.setOrigin(ctx, origin)

	if bytes.Equal(ctx.Method(), optionsMethod) {
		ctx.Response.Header.Set("Access-Control-Allow-Methods", c.allowedMethods)
		ctx.Response.Header.Set("Access-Control-Allow-Headers", c.allowedHeaders)
		ctx.Response.Header.Set("Access-Control-Max-Age", c.maxAge)
		ctx.Response.Header.Set("Vary", "Origin, Access-Control-Request-Method, Access-Control-Request-Headers")
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	if c.exposedHeaders != "" {
		ctx.Response.Header.Set("Access-Control-Expose-Headers", c.exposedHeaders)
	}
	ctx.Response.Header.Add("Vary", "Origin")

	next(ctx)
}

func (c *CORSMiddleware) setOrigin(ctx *types.RequestCtx, origin string) {
	if c.allowsAll && !c.allowCredentials {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	} else {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
	}

	if c.allowCredentials {
		ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
	}
}

// originAllowed matches "*.example.com" against any subdomain of example.com.
func (c *CORSMiddleware) originAllowed(origin string) bool {
	if c.allowsAll || c.allowedOrigins[origin] {
		return true
	}

	host := origin
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}

	for _, suffix := range c.wildcardDomains {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}

	return false
}
