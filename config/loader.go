package config

import (
	"context"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-shop/types"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.Errorf(types.ErrConfigNotFound, "file: %s", configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

// LoadFromBytes substitutes ${VAR} and ${VAR:default} references, applies defaults
// and validates the result.
func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, map[string]interface{}, error) {
	expanded := ExpandEnv(data)

	config := l.Defaults()
	if err := yaml.Unmarshal(expanded, config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	rawData := make(map[string]interface{})
	if err := yaml.Unmarshal(expanded, &rawData); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	return config, rawData, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func ExpandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		if value, ok := os.LookupEnv(string(groups[1])); ok {
			return []byte(value)
		}
		return groups[2]
	})
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "0.0.0.0",
				Port:            4000,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 10,
				MaxRequestBody:  10 * 1024 * 1024,
			},
			TLS: &types.TLSConfig{
				Enabled:  false,
				CacheDir: "./certs",
			},
		},
		Logger: &types.LoggerConfig{
			Type:  "zap",
			Level: "info",
		},
		Cache: &types.CacheConfig{
			Enabled:    true,
			Type:       "memory",
			DefaultTTL: time.Hour,
		},
		Database: &types.DatabaseConfig{
			Type:        "memory",
			Collections: []string{"users", "products", "orders", "coupons", "reviews"},
		},
		Cron: &types.CronConfig{
			Enabled:  true,
			Timezone: "UTC",
		},
		Actions: &types.ActionsConfig{
			Enabled: false,
			Webhooks: &types.WebhooksConfig{
				DSN:        "./webhooks.db",
				Timeout:    10 * time.Second,
				MaxRetries: 3,
			},
			WebSocket: &types.WebSocketConfig{
				ReconnectDelay: 5 * time.Second,
				WriteTimeout:   10 * time.Second,
				QueueSize:      256,
			},
		},
		Metrics: &types.MetricsConfig{
			Enabled: true,
			Type:    "memory",
		},
		Health: &types.HealthConfig{
			Enabled:      true,
			CheckTimeout: 5 * time.Second,
		},
		Payment: &types.PaymentConfig{
			Enabled: false,
			Client: types.ClientConfig{
				BaseURL: "https://api.stripe.com",
				Timeout: 15 * time.Second,
				Retries: 2,
			},
		},
		Media: &types.MediaConfig{
			Type:      "local",
			Directory: "./uploads",
			PublicURL: "/uploads",
		},
		Shop: &types.ShopConfig{
			ProductsPerPage: 8,
			Currency:        "inr",
			DemoAdminID:     "techkart-demo-admin",
			ProductTTL:      time.Hour,
			OrderTTL:        30 * time.Minute,
			AdminTTL:        15 * time.Minute,
			MaxPhotos:       5,
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"stack_trace": true,
				},
				Weight: 10,
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"log_level":   "info",
					"log_headers": false,
				},
				Weight: 20,
			},
			Metadata: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  25,
			},
			RateLimit: &types.MiddlewareItemConfig{
				Enabled: false,
				Params: map[string]interface{}{
					"requests_per_minute": 100,
				},
				Weight: 30,
			},
			BodyLimit: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"max_body_size": 10485760,
				},
				Weight: 40,
			},
			CORS: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  50,
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: false,
				Weight:  60,
			},
			Admin: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  70,
			},
		},
	}
}
