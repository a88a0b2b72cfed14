package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"krishisat/internal/types"
)

// metricsPutTimeout bounds PutMetricData calls made outside a request context.
const metricsPutTimeout = 2 * time.Second

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits the service metrics:
//
//	APILatency, APIRequests  Dims {Endpoint, Method, StatusCode}
//	DegradedMode             Dims {Source}
//	ExternalAPIFailure       Dims {Provider}
//	HighRiskAlert            no dims
//	SweepDistricts           Dims {Status}
//
// Publishing failures are logged and never surface to callers.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ MetricsCollector = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics publishes to namespace, or types.MetricNamespace
// when empty.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordRequest emits latency (ms) and a request count.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dim(types.DimEndpoint, endpoint),
		dim(types.DimMethod, method),
		dim(types.DimStatus, status),
	}
	ctx, cancel := context.WithTimeout(context.Background(), metricsPutTimeout)
	defer cancel()
	m.put(ctx, "api request",
		datum(types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims...),
		datum(types.MetricAPIRequests, 1, cwtypes.StandardUnitCount, dims...),
	)
}

// RecordDegraded counts a fallback to synthetic or default data.
func (m *CloudWatchMetrics) RecordDegraded(ctx context.Context, source string) {
	m.put(context.WithoutCancel(ctx), "degraded mode",
		datum(types.MetricDegradedMode, 1, cwtypes.StandardUnitCount, dim(types.DimSource, source)))
}

// RecordHighRisk counts a HIGH-risk district forecast.
func (m *CloudWatchMetrics) RecordHighRisk(ctx context.Context, districtID int) {
	m.put(context.WithoutCancel(ctx), "high risk",
		datum(types.MetricHighRiskAlert, 1, cwtypes.StandardUnitCount))
	m.logger.DebugContext(ctx, "high risk metric recorded", "district_id", districtID)
}

// RecordSweep reports how many districts a sweep processed and failed.
func (m *CloudWatchMetrics) RecordSweep(ctx context.Context, processed, failed int) {
	m.put(ctx, "sweep",
		datum(types.MetricSweepDistricts, float64(processed), cwtypes.StandardUnitCount, dim(types.DimStatus, "processed")),
		datum(types.MetricSweepDistricts, float64(failed), cwtypes.StandardUnitCount, dim(types.DimStatus, "failed")),
	)
}

// RecordProviderFailure counts a failed call to an external provider. It
// matches the failure hook signature of external.BaseClient.
func (m *CloudWatchMetrics) RecordProviderFailure(provider string) {
	ctx, cancel := context.WithTimeout(context.Background(), metricsPutTimeout)
	defer cancel()
	m.put(ctx, "external failure",
		datum(types.MetricExternalAPIFailure, 1, cwtypes.StandardUnitCount, dim(types.DimProvider, provider)))
}

func (m *CloudWatchMetrics) put(ctx context.Context, what string, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record "+what+" metric", "error", err.Error(), "datums", len(data))
	}
}

func datum(name string, value float64, unit cwtypes.StandardUnit, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Dimensions: dims,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
