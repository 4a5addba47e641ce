package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server" validate:"required"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache"`
	Database    *DatabaseConfig    `yaml:"database" json:"database" validate:"required"`
	Actions     *ActionsConfig     `yaml:"actions" json:"actions"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
	Payment     *PaymentConfig     `yaml:"payment" json:"payment"`
	Media       *MediaConfig       `yaml:"media" json:"media"`
	Shop        *ShopConfig        `yaml:"shop" json:"shop" validate:"required"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http" validate:"required"`
	TLS  *TLSConfig  `yaml:"tls" json:"tls"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxRequestBody  int    `yaml:"max_request_body" json:"max_request_body"`
}

type TLSConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	CertFile string   `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile  string   `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	AutoCert bool     `yaml:"auto_cert" json:"auto_cert"`
	Domains  []string `yaml:"domains,omitempty" json:"domains,omitempty" validate:"required_if=AutoCert true"`
	Email    string   `yaml:"email,omitempty" json:"email,omitempty"`
	CacheDir string   `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	Type       string        `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config     interface{}   `yaml:"config" json:"config"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
}

type DatabaseConfig struct {
	Type        string   `yaml:"type" json:"type" validate:"required,oneof=memory clover"`
	Path        string   `yaml:"path" json:"path" validate:"required_if=Type clover"`
	Collections []string `yaml:"collections" json:"collections"`
}

type ActionsConfig struct {
	Enabled   bool             `yaml:"enabled" json:"enabled"`
	Webhooks  *WebhooksConfig  `yaml:"webhooks" json:"webhooks"`
	WebSocket *WebSocketConfig `yaml:"websocket" json:"websocket"`
}

type WebhooksConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	DSN        string        `yaml:"dsn" json:"dsn" validate:"required_if=Enabled true"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries" validate:"min=0"`
}

type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	URL            string        `yaml:"url" json:"url" validate:"required_if=Enabled true"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	QueueSize      int           `yaml:"queue_size" json:"queue_size"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}

type MiddlewaresConfig struct {
	Enabled     bool                  `yaml:"enabled" json:"enabled"`
	Recovery    *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Logging     *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	RateLimit   *MiddlewareItemConfig `yaml:"rate_limit" json:"rate_limit"`
	BodyLimit   *MiddlewareItemConfig `yaml:"body_limit" json:"body_limit"`
	CORS        *MiddlewareItemConfig `yaml:"cors" json:"cors"`
	Metadata    *MiddlewareItemConfig `yaml:"metadata" json:"metadata"`
	Admin       *MiddlewareItemConfig `yaml:"admin" json:"admin"`
	Compression *MiddlewareItemConfig `yaml:"compression" json:"compression"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type HealthConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	CheckTimeout time.Duration `yaml:"check_timeout" json:"check_timeout"`
}

type ClientConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	Timeout        time.Duration         `yaml:"timeout" json:"timeout"`
	Retries        int                   `yaml:"retries" json:"retries" validate:"min=0"`
	Headers        map[string]string     `yaml:"headers" json:"headers"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests uint32        `yaml:"half_open_requests" json:"half_open_requests"`
}

type PaymentConfig struct {
	Enabled   bool         `yaml:"enabled" json:"enabled"`
	SecretKey string       `yaml:"secret_key" json:"secret_key" validate:"required_if=Enabled true"`
	Client    ClientConfig `yaml:"client" json:"client"`
}

type MediaConfig struct {
	Type      string       `yaml:"type" json:"type" validate:"omitempty,oneof=local remote"`
	Directory string       `yaml:"directory" json:"directory"`
	PublicURL string       `yaml:"public_url" json:"public_url"`
	APIKey    string       `yaml:"api_key" json:"api_key"`
	Client    ClientConfig `yaml:"client" json:"client"`
}

type ShopConfig struct {
	ProductsPerPage int           `yaml:"products_per_page" json:"products_per_page" validate:"min=1"`
	Currency        string        `yaml:"currency" json:"currency" validate:"required"`
	DemoAdminID     string        `yaml:"demo_admin_id" json:"demo_admin_id"`
	ProductTTL      time.Duration `yaml:"product_ttl" json:"product_ttl"`
	OrderTTL        time.Duration `yaml:"order_ttl" json:"order_ttl"`
	AdminTTL        time.Duration `yaml:"admin_ttl" json:"admin_ttl"`
	MaxPhotos       int           `yaml:"max_photos" json:"max_photos" validate:"min=1"`
}
