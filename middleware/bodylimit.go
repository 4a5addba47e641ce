package middleware

import (
	"bytes"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

var bodyMethods = [][]byte{[]byte("POST"), []byte("PUT"), []byte("PATCH"), []byte("DELETE")}

type BodyLimitMiddleware struct {
	logger          types.Logger
	metrics         types.MetricsManager
	bodyLimitConfig *BodyLimitConfig
	maxBytes        int64
	weight          int
}

// BodyLimitConfig accepts human readable sizes such as "10MB" or "512 KiB".
type BodyLimitConfig struct {
	MaxBodySize string `json:"max_body_size"`
}

func NewBodyLimitMiddleware(config *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) (*BodyLimitMiddleware, error) {
	var bodyLimitConfig = &BodyLimitConfig{
		MaxBodySize: "10MB",
	}

	if config != nil && config.Params != nil {
		err := utils.UnmarshalConfig(config.Params, bodyLimitConfig)
		if err != nil {
			logger.Error("Failed to unmarshal BodyLimit middleware config", zap.Error(err))
		}
	}

	maxBytes, err := humanize.ParseBytes(bodyLimitConfig.MaxBodySize)
	if err != nil {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "invalid max_body_size %q", bodyLimitConfig.MaxBodySize)
	}

	return &BodyLimitMiddleware{
		logger:          logger,
		metrics:         metrics,
		bodyLimitConfig: bodyLimitConfig,
		maxBytes:        int64(maxBytes),
		weight:          weightOf(NameBodyLimit, config),
	}, nil
}

func (bl *BodyLimitMiddleware) Name() string    { return NameBodyLimit }
func (bl *BodyLimitMiddleware) Weight() int     { return bl.weight }
func (bl *BodyLimitMiddleware) MaxBytes() int64 { return bl.maxBytes }

func (bl *BodyLimitMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	if !hasBody(ctx.Method()) {
		next(ctx)
		return
	}

	size := int64(ctx.Request.Header.ContentLength())
	if size <= 0 {
		size = int64(len(ctx.PostBody()))
	}

	if size > bl.maxBytes {
		bl.logger.Warn("Request body rejected",
			zap.ByteString("path", ctx.Path()),
			zap.String("size", humanize.Bytes(uint64(size))),
			zap.String("limit", humanize.Bytes(uint64(bl.maxBytes))))

		if bl.metrics != nil {
			bl.metrics.Counter("http_body_limit_rejections_total", nil).Inc()
		}

		ctx.SetConnectionClose()
		utils.WriteError(ctx, types.Errorf(types.ErrBodyTooLarge,
			"Request body exceeds %s", humanize.IBytes(uint64(bl.maxBytes))))
		return
	}

	next(ctx)
}

func hasBody(method []byte) bool {
	for _, m := range bodyMethods {
		if bytes.Equal(method, m) {
			return true
		}
	}
	return false
}
