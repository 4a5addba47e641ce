package middleware

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"set-cookie":    true,
	"x-signature":   true,
}

type LoggingMiddleware struct {
	logger        types.Logger
	metrics       types.MetricsManager
	loggingConfig *LoggingConfig
	weight        int
}

type LoggingConfig struct {
	LogLevel   string `json:"log_level"`
	LogHeaders bool   `json:"log_headers"`
	LogBody    bool   `json:"log_body"`
}

func NewLoggingMiddleware(config *types.MiddlewareItemConfig, logger types.Logger, metrics types.MetricsManager) *LoggingMiddleware {
	var loggingConfig = &LoggingConfig{
		LogLevel: "info",
	}

	if config != nil && config.Params != nil {
		err := utils.UnmarshalConfig(config.Params, loggingConfig)
		if err != nil {
			logger.Error("Failed to unmarshal Logging middleware config", zap.Error(err))
		}
	}

	return &LoggingMiddleware{
		logger:        logger,
		metrics:       metrics,
		loggingConfig: loggingConfig,
		weight:        weightOf(NameLogging, config),
	}
}

func (l *LoggingMiddleware) Name() string { return NameLogging }
func (l *LoggingMiddleware) Weight() int  { return l.weight }

func (l *LoggingMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	start := time.Now()

	l.logRequest(ctx)

	next(ctx)

	duration := time.Since(start)
	l.logResponse(ctx, duration)
	l.record(ctx, duration)
}

func (l *LoggingMiddleware) logRequest(ctx *types.RequestCtx) {
	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("remote_addr", RealIP(ctx)),
		zap.ByteString("user_agent", ctx.UserAgent()),
	}

	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		fields = append(fields, zap.ByteString("query", query))
	}

	fields = append(fields, requestFields(ctx)...)

	if l.loggingConfig.LogHeaders {
		fields = append(fields, zap.Any("headers", sanitizeHeaders(ctx)))
	}

	l.logWithLevel("Request started", fields...)
}

func (l *LoggingMiddleware) logResponse(ctx *types.RequestCtx, duration time.Duration) {
	fields := []zap.Field{
		zap.Duration("duration", duration),
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.Int("status", ctx.Response.StatusCode()),
	}

	fields = append(fields, requestFields(ctx)...)

	if l.loggingConfig.LogBody && len(ctx.Response.Body()) > 0 {
		body := ctx.Response.Body()
		if len(body) > 1000 {
			fields = append(fields,
				zap.String("response", string(body[:1000])+"..."),
				zap.Int("response_body_truncated", len(body)))
		} else {
			fields = append(fields, zap.ByteString("response", body))
		}
	}

	switch status := ctx.Response.StatusCode(); {
	case status >= 500:
		l.logger.Error("Request completed", fields...)
	case status >= 400:
		l.logger.Warn("Request completed", fields...)
	default:
		l.logWithLevel("Request completed", fields...)
	}
}

func (l *LoggingMiddleware) record(ctx *types.RequestCtx, duration time.Duration) {
	if l.metrics == nil {
		return
	}

	method := string(ctx.Method())
	status := strconv.Itoa(ctx.Response.StatusCode())

	l.metrics.Counter("http_requests_total", map[string]string{
		"method": method,
		"status": status,
	}).Inc()

	l.metrics.Histogram("http_request_duration_seconds", nil, map[string]string{
		"method": method,
	}).Observe(duration.Seconds())
}

func requestFields(ctx *types.RequestCtx) []zap.Field {
	metadata := MetadataFrom(ctx)
	if metadata == nil {
		if requestID := ctx.Request.Header.Peek(RequestIDHeader); len(requestID) > 0 {
			return []zap.Field{zap.ByteString("request_id", requestID)}
		}
		return nil
	}

	fields := []zap.Field{zap.String("request_id", metadata.RequestID)}
	if metadata.UserID != "" {
		fields = append(fields, zap.String("user_id", metadata.UserID))
	}
	return fields
}

func sanitizeHeaders(ctx *types.RequestCtx) map[string]string {
	sanitized := make(map[string]string)

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if sensitiveHeaders[strings.ToLower(name)] {
			sanitized[name] = "[REDACTED]"
		} else {
			sanitized[name] = string(value)
		}
	})

	return sanitized
}

func (l *LoggingMiddleware) logWithLevel(msg string, fields ...zap.Field) {
	switch l.loggingConfig.LogLevel {
	case "debug":
		l.logger.Debug(msg, fields...)
	case "warn":
		l.logger.Warn(msg, fields...)
	case "error":
		l.logger.Error(msg, fields...)
	default:
		l.logger.Info(msg, fields...)
	}
}
