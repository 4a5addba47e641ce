package middleware

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

const (
	RequestIDHeader = "X-Request-ID"
	MetadataKey     = "metadata"
)

type MetadataMiddleware struct {
	logger         types.Logger
	metadataConfig *MetadataConfig
	weight         int
}

type MetadataConfig struct {
	GenerateRequestID bool `json:"generate_request_id"`
	EchoRequestID     bool `json:"echo_request_id"`
}

// RequestMetadata is stored on the request context for handlers and later middlewares.
type RequestMetadata struct {
	RequestID string
	RealIP    string
	UserID    string
}

func NewMetadataMiddleware(config *types.MiddlewareItemConfig, logger types.Logger) *MetadataMiddleware {
	var metadataConfig = &MetadataConfig{
		GenerateRequestID: true,
		EchoRequestID:     true,
	}

	if config != nil && config.Params != nil {
		err := utils.UnmarshalConfig(config.Params, metadataConfig)
		if err != nil {
			logger.Error("Failed to unmarshal Metadata middleware config", zap.Error(err))
		}
	}

	return &MetadataMiddleware{
		logger:         logger,
		metadataConfig: metadataConfig,
		weight:         weightOf(NameMetadata, config),
	}
}

func (m *MetadataMiddleware) Name() string { return NameMetadata }
func (m *MetadataMiddleware) Weight() int  { return m.weight }

func (m *MetadataMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	metadata := &RequestMetadata{
		RequestID: string(ctx.Request.Header.Peek(RequestIDHeader)),
		RealIP:    RealIP(ctx),
		UserID:    string(ctx.QueryArgs().Peek("id")),
	}

	if metadata.RequestID == "" && m.metadataConfig.GenerateRequestID {
		metadata.RequestID = uuid.NewString()
		ctx.Request.Header.Set(RequestIDHeader, metadata.RequestID)
	}

	ctx.SetUserValue(MetadataKey, metadata)

	next(ctx)

	if m.metadataConfig.EchoRequestID && metadata.RequestID != "" {
		ctx.Response.Header.Set(RequestIDHeader, metadata.RequestID)
	}
}

// MetadataFrom returns the metadata attached by MetadataMiddleware, or nil.
func MetadataFrom(ctx *types.RequestCtx) *RequestMetadata {
	metadata, _ := ctx.UserValue(MetadataKey).(*RequestMetadata)
	return metadata
}

func RealIP(ctx *types.RequestCtx) string {
	if realIP := string(ctx.Request.Header.Peek("X-Real-IP")); realIP != "" {
		return realIP
	}

	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		if comma := strings.Index(forwarded, ","); comma > 0 {
			return strings.TrimSpace(forwarded[:comma])
		}
		return strings.TrimSpace(forwarded)
	}

	return ctx.RemoteIP().String()
}
