// Package main is the entry point for the KrishiSat API server.
//
// It loads configuration, connects the optional infrastructure (Postgres,
// Redis, SQS, CloudWatch), builds the prediction service around the model
// server and data providers, mounts the handlers on the core chassis and
// serves HTTP until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"krishisat/internal/api/handlers"
	"krishisat/internal/cache"
	"krishisat/internal/config"
	"krishisat/internal/core"
	"krishisat/internal/db"
	"krishisat/internal/districts"
	"krishisat/internal/external"
	"krishisat/internal/predict"
	"krishisat/internal/queue"
	"krishisat/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("krishisat API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	infra, err := connectInfra(ctx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}

	srv, err := buildServer(cfg, logger, infra)
	if err != nil {
		return err
	}

	return runHTTPServer(srv, cfg, logger)
}

// infra holds the optional backing services. A nil field means the feature
// it serves is disabled.
type infra struct {
	pool    *pgxpool.Pool
	redis   *redis.Client
	sqs     queue.SQSSender
	metrics *core.CloudWatchMetrics
}

// connectInfra dials each configured backing service. Postgres and Redis
// failures are fatal once configured; leaving them unset disables them.
func connectInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*infra, error) {
	var in infra

	if cfg.Database.URL.IsSet() {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		in.pool = pool
		logger.Info("database connected")
	} else {
		logger.Warn("DATABASE_URL not set, forecast history disabled")
	}

	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password.Unmask(), cfg.Redis.DB)
		if err != nil {
			in.close(logger)
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		in.redis = client
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	if cfg.AWS.AlertQueueURL != "" || cfg.Observability.EnableMetrics {
		awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			in.close(logger)
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		if cfg.AWS.AlertQueueURL != "" {
			in.sqs = sqs.NewFromConfig(awsCfg)
		}
		if cfg.Observability.EnableMetrics {
			in.metrics = core.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
		}
	}

	return &in, nil
}

func (in *infra) close(logger *slog.Logger) {
	if in.pool != nil {
		in.pool.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
}

func loadAWSConfig(ctx context.Context, awsCfg config.AWSConfig) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsCfg.Region))
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.EndpointURL != "" {
		cfg.BaseEndpoint = aws.String(awsCfg.EndpointURL)
	}
	return cfg, nil
}

// buildServer wires the prediction service, handlers and health probes onto
// a core.Server and mounts the routes.
func buildServer(cfg *config.Config, logger *slog.Logger, in *infra) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	var failureHook []external.BaseClientOption
	if in.metrics != nil {
		srv.Metrics = in.metrics
		failureHook = append(failureHook, external.WithFailureHook(in.metrics.RecordProviderFailure))
	}

	inference := newInferenceClient(cfg.Inference, logger, failureHook...)
	models, err := predict.NewModelBundle(inference, inference)
	if err != nil {
		return nil, fmt.Errorf("building model bundle: %w", err)
	}

	svcCfg := predict.ServiceConfig{
		Models: models,
		Logger: logger,
		Clock:  types.RealClock{},
	}
	if in.metrics != nil {
		svcCfg.Metrics = in.metrics
	}

	if cfg.Sentinel.Enabled() {
		svcCfg.Imagery = external.NewSentinelClient(
			&http.Client{Timeout: cfg.Sentinel.Timeout},
			external.SentinelClientConfig{
				ClientID:         cfg.Sentinel.ClientID,
				ClientSecret:     cfg.Sentinel.ClientSecret.Unmask(),
				TokenURL:         cfg.Sentinel.TokenURL,
				BaseURL:          cfg.Sentinel.BaseURL,
				LookbackDays:     cfg.Sentinel.LookbackDays,
				MaxCloudCoverage: cfg.Sentinel.MaxCloudCoverage,
				Logger:           logger,
			},
			failureHook...,
		)
	} else {
		logger.Warn("sentinel credentials not set, imagery will be synthesized")
	}

	if cfg.Weather.Enabled() {
		var weather predict.WeatherProvider = external.NewOpenWeatherClient(
			&http.Client{Timeout: cfg.Weather.Timeout},
			external.OpenWeatherClientConfig{
				APIKey:  cfg.Weather.APIKey.Unmask(),
				BaseURL: cfg.Weather.BaseURL,
				Logger:  logger,
			},
			failureHook...,
		)
		if in.redis != nil {
			weather = cache.NewWeatherCache(weather, in.redis, cfg.Redis.WeatherTTL, logger)
		}
		svcCfg.Weather = weather
	} else {
		logger.Warn("OPENWEATHER_API_KEY not set, weather will use defaults")
	}

	var (
		repo  *db.ForecastRepository
		scans *db.ScanRepository
	)
	if in.pool != nil {
		repo = db.NewForecastRepository(in.pool)
		scans = db.NewScanRepository(in.pool)
		svcCfg.Store = repo
		svcCfg.Scans = scans
		srv.HealthProbes = append(srv.HealthProbes, core.NewHealthProbe("database", db.NewProbe(in.pool)))
		srv.Closers = append(srv.Closers, func() error { in.pool.Close(); return nil })
	}
	if in.redis != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.NewHealthProbe("redis", cache.NewProbe(in.redis)))
		srv.Closers = append(srv.Closers, in.redis.Close)
	}
	if in.sqs != nil {
		svcCfg.Alerts = queue.NewAlertPublisher(in.sqs, cfg.AWS, logger)
	}
	srv.HealthProbes = append(srv.HealthProbes, core.NewHealthProbe("inference", core.CheckFunc(inference.Health)))

	svc, err := predict.NewService(svcCfg)
	if err != nil {
		return nil, fmt.Errorf("creating prediction service: %w", err)
	}

	catalog := districts.Default()
	predictions := handlers.NewPredictionHandler(svc, catalog, srv.Validator, cfg.Server.MaxUploadBytes, logger)

	// A nil *db.ForecastRepository must not become a non-nil interface.
	var latest handlers.LatestForecastReader
	if repo != nil {
		latest = repo
	}
	districtHandler := handlers.NewDistrictHandler(catalog, latest, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		predictions.RegisterRoutes,
		districtHandler.RegisterRoutes,
	)
	// Scan history only exists when scans are persisted.
	if scans != nil {
		srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, handlers.NewScanHandler(scans, logger).RegisterRoutes)
	}
	srv.MountRoutes()
	return srv, nil
}

func newInferenceClient(cfg config.InferenceConfig, logger *slog.Logger, opts ...external.BaseClientOption) *external.InferenceClient {
	policy := external.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	opts = append([]external.BaseClientOption{external.WithFailureCode(types.ErrCodeUpstreamInference)}, opts...)
	base := external.NewBaseClient(&http.Client{Timeout: cfg.Timeout}, "inference", policy, "KrishiSat/1.0", opts...)
	return external.NewInferenceClientWithBase(base, external.InferenceClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey.Unmask(),
		Logger:  logger,
	})
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
