package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
	callCount  int
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.callCount++
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// testDeps reads the real environment (populated via t.Setenv) but never
// loads a .env file.
func testDeps() loaderDeps {
	deps := defaultDeps()
	deps.dotenv = func() error { return nil }
	return deps
}

func setMinimalEnv(t *testing.T, appEnv string) {
	t.Helper()
	t.Setenv("APP_ENV", appEnv)
	t.Setenv("LOG_LEVEL", "debug")
}

func TestLoadConfigLocalDefaults(t *testing.T) {
	setMinimalEnv(t, "local")

	cfg, err := loadConfigWithDeps(nil, testDeps())
	if err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want local", cfg.Environment)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes != 10<<20 {
		t.Errorf("Server.MaxUploadBytes = %d, want %d", cfg.Server.MaxUploadBytes, 10<<20)
	}
	if cfg.Server.RequestTimeout != 29*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 29s", cfg.Server.RequestTimeout)
	}
	if cfg.Inference.MaxRetries != 2 {
		t.Errorf("Inference.MaxRetries = %d, want 2", cfg.Inference.MaxRetries)
	}
	if cfg.Sentinel.LookbackDays != 150 {
		t.Errorf("Sentinel.LookbackDays = %d, want 150", cfg.Sentinel.LookbackDays)
	}
	if cfg.Sentinel.MaxCloudCoverage != 20 {
		t.Errorf("Sentinel.MaxCloudCoverage = %d, want 20", cfg.Sentinel.MaxCloudCoverage)
	}
	if cfg.Redis.WeatherTTL != 10*time.Minute {
		t.Errorf("Redis.WeatherTTL = %v, want 10m", cfg.Redis.WeatherTTL)
	}
	if cfg.Sentinel.Enabled() || cfg.Weather.Enabled() {
		t.Error("providers should be disabled without credentials")
	}
	if cfg.Build.Version != version {
		t.Errorf("Build.Version = %q, want %q", cfg.Build.Version, version)
	}
}

func TestLoadConfigProviderCredentials(t *testing.T) {
	setMinimalEnv(t, "local")
	t.Setenv("SENTINEL_CLIENT_ID", "client-id")
	t.Setenv("SENTINEL_CLIENT_SECRET", "client-secret")
	t.Setenv("OPENWEATHER_API_KEY", "owm-key")

	cfg, err := loadConfigWithDeps(nil, testDeps())
	if err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}

	if !cfg.Sentinel.Enabled() {
		t.Error("Sentinel should be enabled")
	}
	if cfg.Sentinel.ClientSecret.Unmask() != "client-secret" {
		t.Error("Sentinel secret not loaded")
	}
	if !cfg.Weather.Enabled() {
		t.Error("Weather should be enabled")
	}
}

func TestLoadConfigValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown environment", map[string]string{"APP_ENV": "qa"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"half sentinel credentials", map[string]string{"SENTINEL_CLIENT_ID": "only-id"}},
		{"cloud coverage above 100", map[string]string{"SENTINEL_MAX_CLOUD_COVERAGE": "101"}},
		{"lookback shorter than series", map[string]string{"SENTINEL_LOOKBACK_DAYS": "10"}},
		{"bad inference url", map[string]string{"INFERENCE_BASE_URL": "not a url"}},
		{"bad queue url", map[string]string{"SQS_RISK_ALERTS": "queue"}},
		{"zero upload limit", map[string]string{"MAX_UPLOAD_BYTES": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMinimalEnv(t, "local")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfigWithDeps(nil, testDeps())
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Type != ErrValidation {
				t.Errorf("Type = %s, want %s", cfgErr.Type, ErrValidation)
			}
		})
	}
}

func TestLoadConfigParsingFailure(t *testing.T) {
	setMinimalEnv(t, "local")
	t.Setenv("REQUEST_TIMEOUT", "soon")

	_, err := loadConfigWithDeps(nil, testDeps())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrParsing {
		t.Fatalf("expected parsing ConfigError, got %v", err)
	}
}

func TestLoadConfigResolvesSSM(t *testing.T) {
	setMinimalEnv(t, "prod")
	t.Setenv("OPENWEATHER_API_KEY_SSM_PARAM", "/prod/krishisat/openweather/key")
	t.Setenv("DATABASE_URL_SSM_PARAM", "/prod/krishisat/database/url")
	os.Unsetenv("OPENWEATHER_API_KEY")
	os.Unsetenv("DATABASE_URL")
	t.Cleanup(func() {
		os.Unsetenv("OPENWEATHER_API_KEY")
		os.Unsetenv("DATABASE_URL")
	})

	provider := &testSecretProvider{values: map[string]string{
		"/prod/krishisat/openweather/key": "ssm-owm-key",
		"/prod/krishisat/database/url":    "postgres://ssm-value/db",
	}}

	cfg, err := loadConfigWithDeps(provider, testDeps())
	if err != nil {
		t.Fatalf("loadConfigWithDeps returned error: %v", err)
	}

	if provider.callCount != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount)
	}
	if cfg.Weather.APIKey.Unmask() != "ssm-owm-key" {
		t.Errorf("Weather.APIKey not resolved from SSM")
	}
	if cfg.Database.URL.Unmask() != "postgres://ssm-value/db" {
		t.Errorf("Database.URL not resolved from SSM")
	}
}

func TestResolveSSMParamsEnvWins(t *testing.T) {
	env := map[string]string{
		"OPENWEATHER_API_KEY":           "from-env",
		"OPENWEATHER_API_KEY_SSM_PARAM": "/prod/owm",
	}
	provider := &testSecretProvider{values: map[string]string{"/prod/owm": "from-ssm"}}

	err := resolveSSMParams(provider, fakeDeps(env))
	if err != nil {
		t.Fatalf("resolveSSMParams returned error: %v", err)
	}
	if provider.callCount != 0 {
		t.Error("provider should not be called when the target is already set")
	}
	if env["OPENWEATHER_API_KEY"] != "from-env" {
		t.Error("environment value was overwritten")
	}
}

func TestResolveSSMParamsMissingProvider(t *testing.T) {
	env := map[string]string{"REDIS_PASSWORD_SSM_PARAM": "/prod/redis"}

	err := resolveSSMParams(nil, fakeDeps(env))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrSSMResolution {
		t.Fatalf("expected SSM ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Message, "REDIS_PASSWORD") {
		t.Errorf("message should name the target variable: %s", cfgErr.Message)
	}
}

func TestResolveSSMParamsNotFound(t *testing.T) {
	env := map[string]string{
		"REDIS_PASSWORD_SSM_PARAM":      "/prod/redis",
		"OPENWEATHER_API_KEY_SSM_PARAM": "/prod/owm",
	}
	provider := &testSecretProvider{values: map[string]string{"/prod/owm": "key"}}

	err := resolveSSMParams(provider, fakeDeps(env))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Message, "REDIS_PASSWORD") {
		t.Errorf("message = %q", cfgErr.Message)
	}
	if env["OPENWEATHER_API_KEY"] != "key" {
		t.Error("resolved values should still be injected")
	}
}

func TestResolveSSMParamsProviderError(t *testing.T) {
	env := map[string]string{"REDIS_PASSWORD_SSM_PARAM": "/prod/redis"}
	provider := &testSecretProvider{err: errors.New("throttled")}

	err := resolveSSMParams(provider, fakeDeps(env))
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func fakeDeps(env map[string]string) loaderDeps {
	return loaderDeps{
		lookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		setEnv: func(key, value string) error {
			env[key] = value
			return nil
		},
		environ: func() []string {
			out := make([]string, 0, len(env))
			for k, v := range env {
				out = append(out, k+"="+v)
			}
			return out
		},
		dotenv: func() error { return nil },
	}
}

func TestConfigErrorFormatting(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigError{Type: ErrParsing, Message: "parse", Err: inner}
	if err.Error() != "[PARSING_FAILED] parse: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
}
