package middleware

import (
	"bytes"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

const (
	AlgorithmGzip    = "gzip"
	AlgorithmBrotli  = "br"
	DefaultLevel     = 6
	DefaultThreshold = 1024
)

type CompressionMiddleware struct {
	logger            types.Logger
	compressionConfig *CompressionConfig
	weight            int
	bufferPool        sync.Pool
}

type CompressionConfig struct {
	Level        int      `json:"level"`
	Threshold    int      `json:"threshold"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(config *types.MiddlewareItemConfig, logger types.Logger) *CompressionMiddleware {
	compressionConfig := &CompressionConfig{
		Level:        DefaultLevel,
		Threshold:    DefaultThreshold,
		AllowedTypes: []string{"application/json", "text/*"},
	}

	if config != nil && config.Params != nil {
		if err := utils.UnmarshalConfig(config.Params, compressionConfig); err != nil {
			logger.Error("Failed to unmarshal compression middleware config", zap.Error(err))
		}
	}

	if compressionConfig.Level < 1 || compressionConfig.Level > 9 {
		logger.Warn("Invalid compression level, using default", zap.Int("level", compressionConfig.Level))
		compressionConfig.Level = DefaultLevel
	}

	return &CompressionMiddleware{
		logger:            logger,
		compressionConfig: compressionConfig,
		weight:            weightOf(NameCompression, config),
		bufferPool: sync.Pool{
			New: func() interface{} { return new(bytes.Buffer) },
		},
	}
}

func (c *CompressionMiddleware) Name() string { return NameCompression }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) Handle(ctx *types.RequestCtx, next func(*types.RequestCtx), _ *types.RouteConfig) {
	next(ctx)

	algorithm := negotiate(string(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding)))
	if algorithm == "" || !c.shouldCompress(ctx) {
		return
	}

	body := ctx.Response.Body()

	var compressed []byte
	var err error
	switch algorithm {
	case AlgorithmBrotli:
		compressed, err = c.brotli(body)
	default:
		compressed = fasthttp.AppendGzipBytesLevel(nil, body, c.compressionConfig.Level)
	}

	if err != nil {
		c.logger.Warn("Response compression failed", zap.String("algorithm", algorithm), zap.Error(err))
		return
	}

	if len(compressed) >= len(body) {
		return
	}

	ctx.Response.SetBodyRaw(compressed)
	ctx.Response.Header.Set(fasthttp.HeaderContentEncoding, algorithm)
	ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)
}

func (c *CompressionMiddleware) shouldCompress(ctx *types.RequestCtx) bool {
	if len(ctx.Response.Header.Peek(fasthttp.HeaderContentEncoding)) > 0 {
		return false
	}

	if len(ctx.Response.Body()) < c.compressionConfig.Threshold {
		return false
	}

	contentType := string(ctx.Response.Header.ContentType())
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}

	for _, allowed := range c.compressionConfig.AllowedTypes {
		if strings.HasSuffix(allowed, "/*") {
			if strings.HasPrefix(contentType, strings.TrimSuffix(allowed, "*")) {
				return true
			}
		} else if contentType == allowed {
			return true
		}
	}

	return false
}

func (c *CompressionMiddleware) brotli(body []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	writer := brotli.NewWriterLevel(buf, c.compressionConfig.Level)
	if _, err := writer.Write(body); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

// negotiate prefers brotli over gzip when the client accepts both.
func negotiate(acceptEncoding string) string {
	if acceptEncoding == "" {
		return ""
	}

	gzipOK := false
	for _, part := range strings.Split(acceptEncoding, ",") {
		name := strings.TrimSpace(part)
		if idx := strings.IndexByte(name, ';'); idx >= 0 {
			if strings.Contains(name[idx:], "q=0") && !strings.Contains(name[idx:], "q=0.") {
				continue
			}
			name = strings.TrimSpace(name[:idx])
		}

		switch name {
		case AlgorithmBrotli:
			return AlgorithmBrotli
		case AlgorithmGzip:
			gzipOK = true
		}
	}

	if gzipOK {
		return AlgorithmGzip
	}
	return ""
}
