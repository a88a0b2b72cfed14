// Package main is the entry point for the district sweeper Lambda.
//
// The sweeper is triggered on a schedule. Each invocation runs the full
// imagery, weather and forecast pipeline for every catalog district that has
// not been forecast within SWEEP_MIN_INTERVAL, stores the reports and
// publishes alerts for HIGH-risk districts.
//
// Dependency wiring happens once per cold start; the handler only runs the
// sweep.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

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

// sweepRunner is the part of predict.Sweeper the handler calls.
type sweepRunner interface {
	Run(ctx context.Context) (*predict.SweepResult, error)
}

// handler adapts a sweepRunner to the Lambda runtime.
type handler struct {
	sweeper sweepRunner
	logger  *slog.Logger
}

// Handle runs one sweep. Per-district failures are reported in the result;
// only a canceled or timed-out invocation returns an error.
func (h *handler) Handle(ctx context.Context) (*predict.SweepResult, error) {
	result, err := h.sweeper.Run(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "sweep aborted", "error", err)
		return result, fmt.Errorf("sweep aborted: %w", err)
	}
	return result, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("district sweeper initializing (cold start)")

	h, cleanup, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("sweeper initialization failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Local mode: run a single sweep and print the result.
	if os.Getenv("APP_ENV") == "local" {
		result, err := h.Handle(context.Background())
		if err != nil {
			logger.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		_ = json.NewEncoder(os.Stdout).Encode(result)
		return
	}

	lambda.Start(h.Handle)
}

// newHandler loads configuration and wires the sweeper. The returned cleanup
// releases the database pool and Redis client.
func newHandler(ctx context.Context, logger *slog.Logger) (*handler, func(), error) {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	var (
		metrics     *core.CloudWatchMetrics
		failureHook []external.BaseClientOption
		svcCfg      = predict.ServiceConfig{Logger: logger, Clock: types.RealClock{}}
	)

	if cfg.AWS.AlertQueueURL != "" || cfg.Observability.EnableMetrics {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		if cfg.AWS.EndpointURL != "" {
			awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
		if cfg.AWS.AlertQueueURL != "" {
			svcCfg.Alerts = queue.NewAlertPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)
		}
		if cfg.Observability.EnableMetrics {
			metrics = core.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
			svcCfg.Metrics = metrics
			failureHook = append(failureHook, external.WithFailureHook(metrics.RecordProviderFailure))
		}
	}

	policy := external.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Inference.MaxRetries
	inferenceBase := external.NewBaseClient(&http.Client{Timeout: cfg.Inference.Timeout}, "inference", policy, "KrishiSat/1.0",
		append([]external.BaseClientOption{external.WithFailureCode(types.ErrCodeUpstreamInference)}, failureHook...)...)
	inference := external.NewInferenceClientWithBase(inferenceBase, external.InferenceClientConfig{
		BaseURL: cfg.Inference.BaseURL,
		APIKey:  cfg.Inference.APIKey.Unmask(),
		Logger:  logger,
	})
	svcCfg.Models, err = predict.NewModelBundle(inference, inference)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Sentinel.Enabled() {
		svcCfg.Imagery = external.NewSentinelClient(&http.Client{Timeout: cfg.Sentinel.Timeout}, external.SentinelClientConfig{
			ClientID:         cfg.Sentinel.ClientID,
			ClientSecret:     cfg.Sentinel.ClientSecret.Unmask(),
			TokenURL:         cfg.Sentinel.TokenURL,
			BaseURL:          cfg.Sentinel.BaseURL,
			LookbackDays:     cfg.Sentinel.LookbackDays,
			MaxCloudCoverage: cfg.Sentinel.MaxCloudCoverage,
			Logger:           logger,
		}, failureHook...)
	}

	if cfg.Weather.Enabled() {
		var weather predict.WeatherProvider = external.NewOpenWeatherClient(&http.Client{Timeout: cfg.Weather.Timeout}, external.OpenWeatherClientConfig{
			APIKey:  cfg.Weather.APIKey.Unmask(),
			BaseURL: cfg.Weather.BaseURL,
			Logger:  logger,
		}, failureHook...)
		if cfg.Redis.Addr != "" {
			client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password.Unmask(), cfg.Redis.DB)
			if err != nil {
				logger.Warn("redis unavailable, weather cache disabled", "error", err)
			} else {
				closers = append(closers, func() { _ = client.Close() })
				weather = cache.NewWeatherCache(weather, client, cfg.Redis.WeatherTTL, logger)
			}
		}
		svcCfg.Weather = weather
	}

	var recent predict.RecentForecastCounter
	if cfg.Database.URL.IsSet() {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		closers = append(closers, pool.Close)
		repo := db.NewForecastRepository(pool)
		svcCfg.Store = repo
		recent = repo
	} else {
		logger.Warn("DATABASE_URL not set, sweep results will not be stored")
	}

	svc, err := predict.NewService(svcCfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var sweepMetrics predict.SweepMetrics
	if metrics != nil {
		sweepMetrics = metrics
	}
	sweeper := predict.NewSweeper(svc, districts.Default(), recent, sweepMetrics, cfg.Sweep.MinInterval, logger)

	logger.Info("district sweeper initialized",
		"imagery", cfg.Sentinel.Enabled(),
		"weather", cfg.Weather.Enabled(),
		"persistence", recent != nil,
		"min_interval", cfg.Sweep.MinInterval.String(),
	)
	return &handler{sweeper: sweeper, logger: logger}, cleanup, nil
}
