// Package config defines the process configuration for the KrishiSat API and
// the district sweeper. Configuration is loaded once at startup and treated
// as immutable afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"krishisat/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// sub-struct they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"krishisat-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Inference     InferenceConfig
	Sentinel      SentinelConfig
	Weather       WeatherConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Sweep         SweepConfig

	// Injected via ldflags, not Env
	Build BuildInfo
}

// ServerConfig holds HTTP server limits.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760" validate:"gt=0"`
}

// InferenceConfig points at the model server hosting the image classifier
// and the sequence risk model.
type InferenceConfig struct {
	BaseURL    string        `envconfig:"INFERENCE_BASE_URL" default:"http://localhost:8000" validate:"required,url"`
	APIKey     SecretString  `envconfig:"INFERENCE_API_KEY"`
	Timeout    time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"30s"`
	MaxRetries int           `envconfig:"INFERENCE_MAX_RETRIES" default:"2" validate:"gte=0,lte=5"`
}

// SentinelConfig holds the Sentinel Hub OAuth client and imagery query
// parameters. Imagery is disabled when the client credentials are absent.
type SentinelConfig struct {
	ClientID         string        `envconfig:"SENTINEL_CLIENT_ID" validate:"required_with=ClientSecret"`
	ClientSecret     SecretString  `envconfig:"SENTINEL_CLIENT_SECRET" validate:"required_with=ClientID"`
	TokenURL         string        `envconfig:"SENTINEL_TOKEN_URL" default:"https://services.sentinel-hub.com/auth/realms/main/protocol/openid-connect/token" validate:"url"`
	BaseURL          string        `envconfig:"SENTINEL_BASE_URL" default:"https://services.sentinel-hub.com" validate:"url"`
	LookbackDays     int           `envconfig:"SENTINEL_LOOKBACK_DAYS" default:"150" validate:"gte=30"`
	MaxCloudCoverage int           `envconfig:"SENTINEL_MAX_CLOUD_COVERAGE" default:"20" validate:"gte=0,lte=100"`
	Timeout          time.Duration `envconfig:"SENTINEL_TIMEOUT" default:"30s"`
}

// Enabled reports whether imagery credentials are configured.
func (c SentinelConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret.IsSet()
}

// WeatherConfig holds the OpenWeather credentials. Live weather is disabled
// when the key is absent.
type WeatherConfig struct {
	APIKey  SecretString  `envconfig:"OPENWEATHER_API_KEY"`
	BaseURL string        `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org" validate:"url"`
	Timeout time.Duration `envconfig:"OPENWEATHER_TIMEOUT" default:"5s"`
}

// Enabled reports whether a weather API key is configured.
func (c WeatherConfig) Enabled() bool {
	return c.APIKey.IsSet()
}

// DatabaseConfig holds the Postgres connection used for forecast history.
// Persistence is disabled when URL is empty.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig holds the weather cache connection. Caching is disabled when
// Addr is empty.
type RedisConfig struct {
	Addr       string        `envconfig:"REDIS_ADDR"`
	Password   SecretString  `envconfig:"REDIS_PASSWORD"`
	DB         int           `envconfig:"REDIS_DB" default:"0"`
	WeatherTTL time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"10m"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region        string `envconfig:"AWS_REGION" default:"us-east-1"`
	AlertQueueURL string `envconfig:"SQS_RISK_ALERTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"KrishiSat"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// SweepConfig controls the scheduled district sweep.
type SweepConfig struct {
	// Districts forecast within this window are skipped. Zero sweeps all.
	MinInterval time.Duration `envconfig:"SWEEP_MIN_INTERVAL" default:"6h"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
