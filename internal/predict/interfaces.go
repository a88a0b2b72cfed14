// Package predict orchestrates disease classification and risk forecasting.
// It owns the model bundle and the data providers, threads data-source flags
// through every forecast, and substitutes synthetic vegetation or default
// weather whenever a provider fails.
package predict

import (
	"context"
	"errors"

	"krishisat/internal/risk"
	"krishisat/internal/types"
)

// ImageClassifier returns the class distribution for one leaf image, in the
// model's native class order.
type ImageClassifier interface {
	Classify(ctx context.Context, image []byte) ([]risk.ClassProbability, error)
}

// SequenceRiskModel returns one risk score per forecast day.
type SequenceRiskModel interface {
	Predict(ctx context.Context, features risk.FeatureVector) ([]float64, error)
}

// ImageryProvider looks up the vegetation history for an area.
type ImageryProvider interface {
	FetchVegetation(ctx context.Context, bbox risk.BBox) (*risk.VegetationReading, error)
}

// WeatherProvider looks up current conditions at a point.
type WeatherProvider interface {
	FetchCurrent(ctx context.Context, lat, lon float64) (risk.WeatherObservation, error)
}

// ForecastStore persists forecast reports.
type ForecastStore interface {
	Create(ctx context.Context, f *types.StoredForecast) error
}

// ScanStore persists disease predictions.
type ScanStore interface {
	Create(ctx context.Context, s *types.StoredScan) error
}

// AlertPublisher announces HIGH-risk forecasts.
type AlertPublisher interface {
	Publish(ctx context.Context, alert types.RiskAlert) error
}

// MetricsRecorder receives the service's operational signals.
type MetricsRecorder interface {
	RecordDegraded(ctx context.Context, source string)
	RecordHighRisk(ctx context.Context, districtID int)
}

// ModelBundle holds the loaded models. It is built once at startup and
// shared read-only by all requests.
type ModelBundle struct {
	Classifier ImageClassifier
	Forecaster SequenceRiskModel
}

// NewModelBundle validates that both models are present.
func NewModelBundle(classifier ImageClassifier, forecaster SequenceRiskModel) (ModelBundle, error) {
	if classifier == nil {
		return ModelBundle{}, errors.New("predict: image classifier is required")
	}
	if forecaster == nil {
		return ModelBundle{}, errors.New("predict: sequence risk model is required")
	}
	return ModelBundle{Classifier: classifier, Forecaster: forecaster}, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordDegraded(context.Context, string) {}
func (noopMetrics) RecordHighRisk(context.Context, int)    {}
