package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"krishisat/internal/risk"
	"krishisat/internal/types"
)

// WeatherSource records where the weather fed to the forecaster came from.
type WeatherSource string

const (
	WeatherSupplied WeatherSource = "supplied"
	WeatherLive     WeatherSource = "live"
	WeatherDefault  WeatherSource = "default"
)

// defaultCropType is recorded when a scan does not name its crop.
const defaultCropType = "unknown"

// Degraded-mode metric sources.
const (
	degradedImagery = "imagery"
	degradedWeather = "weather"
)

// WeatherInput carries caller-provided conditions. Nil fields take the
// documented defaults.
type WeatherInput struct {
	TemperatureC *float64
	HumidityPct  *float64
	RainfallMM   *float64
	DayOfYear    *int
}

// DiseaseInput is one leaf image plus optional scan metadata.
type DiseaseInput struct {
	Image         []byte
	CropType      string
	FieldLocation string
}

// DiseaseResult is a disease report and, when scans are persisted, the ID
// of the stored scan.
type DiseaseResult struct {
	risk.DiseaseReport
	ScanID string `json:"scan_id,omitempty"`
}

// ForecastInput is a forecast request over a caller-supplied series.
type ForecastInput struct {
	Series     []float64
	Weather    *WeatherInput
	DistrictID *int
}

// FullInput is a full-pipeline request for an area.
type FullInput struct {
	BBox       risk.BBox
	Lat        float64
	Lon        float64
	DistrictID *int
	// Origin defaults to ForecastOriginSatellite.
	Origin types.ForecastOrigin
}

// ForecastReport is a forecast annotated with the provenance of its inputs.
type ForecastReport struct {
	risk.ForecastResult
	DistrictID       *int                  `json:"district_id,omitempty"`
	VegetationSource risk.VegetationSource `json:"vegetation_source"`
	WeatherSource    WeatherSource         `json:"weather_source"`
	Degraded         bool                  `json:"degraded"`
}

// FullReport extends ForecastReport with the data the pipeline fetched.
type FullReport struct {
	ForecastReport
	CurrentNDVI float64                 `json:"current_ndvi"`
	NDVITrend   risk.Trend              `json:"ndvi_trend"`
	NDVISeries  []float64               `json:"ndvi_series"`
	Weather     risk.WeatherObservation `json:"weather"`
}

// ServiceConfig wires a Service. Only Models is required: a nil Imagery or
// Weather provider makes every full-pipeline request degrade, and a nil
// Store, Scans or Alerts disables that side effect.
type ServiceConfig struct {
	Models  ModelBundle
	Imagery ImageryProvider
	Weather WeatherProvider
	Store   ForecastStore
	Scans   ScanStore
	Alerts  AlertPublisher
	Metrics MetricsRecorder
	Logger  *slog.Logger
	Clock   types.Clock
	// NewSynthesizer builds the per-request fallback generator. Defaults to
	// risk.NewSynthesizer.
	NewSynthesizer func() *risk.Synthesizer
}

// Service runs the prediction pipelines.
type Service struct {
	models   ModelBundle
	imagery  ImageryProvider
	weather  WeatherProvider
	store    ForecastStore
	scans    ScanStore
	alerts   AlertPublisher
	metrics  MetricsRecorder
	logger   *slog.Logger
	clock    types.Clock
	newSynth func() *risk.Synthesizer
}

// NewService creates a Service from cfg.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Models.Classifier == nil || cfg.Models.Forecaster == nil {
		return nil, errors.New("predict: model bundle is incomplete")
	}
	s := &Service{
		models:   cfg.Models,
		imagery:  cfg.Imagery,
		weather:  cfg.Weather,
		store:    cfg.Store,
		scans:    cfg.Scans,
		alerts:   cfg.Alerts,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		newSynth: cfg.NewSynthesizer,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = types.RealClock{}
	}
	if s.newSynth == nil {
		s.newSynth = risk.NewSynthesizer
	}
	return s, nil
}

// PredictDisease classifies a JPEG or PNG leaf image and records the scan
// when a ScanStore is configured.
func (s *Service) PredictDisease(ctx context.Context, in DiseaseInput) (*DiseaseResult, error) {
	img := in.Image
	if len(img) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidImage, "image is empty", nil)
	}
	if _, _, err := image.Decode(bytes.NewReader(img)); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidImage,
			"image could not be decoded as JPEG or PNG", err)
	}

	probs, err := s.models.Classifier.Classify(ctx, img)
	if err != nil {
		return nil, types.AsAppError(err, types.ErrCodeUpstreamInference, "image classification failed")
	}

	report, err := risk.SummarizeDisease(probs)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalModelOutputInvalid,
			"classifier output is invalid", err)
	}

	s.log(ctx).InfoContext(ctx, "disease predicted",
		"disease", report.Disease,
		"confidence", report.Confidence,
		"risk_level", report.RiskLevel,
	)
	result := &DiseaseResult{DiseaseReport: *report}
	result.ScanID = s.recordScan(ctx, in, report)
	return result, nil
}

// PredictForecast runs the sequence model over a supplied series.
func (s *Service) PredictForecast(ctx context.Context, in ForecastInput) (*ForecastReport, error) {
	if len(in.Series) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationEmptySeries, "ndvi_series must not be empty", nil)
	}

	weather, weatherSource := s.resolveWeather(in.Weather)
	result, err := s.forecast(ctx, in.Series, weather)
	if err != nil {
		return nil, err
	}

	report := &ForecastReport{
		ForecastResult:   *result,
		DistrictID:       in.DistrictID,
		VegetationSource: risk.SourceSupplied,
		WeatherSource:    weatherSource,
		Degraded:         weatherSource == WeatherDefault,
	}
	s.record(ctx, report, types.ForecastOriginManual, report)
	return report, nil
}

// PredictFull fetches imagery and weather for an area concurrently, falls
// back to synthetic data where a fetch fails, and runs the forecast.
func (s *Service) PredictFull(ctx context.Context, in FullInput) (*FullReport, error) {
	if err := in.BBox.Validate(); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidBBox, err.Error(), nil)
	}
	if in.Lat < -90 || in.Lat > 90 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidLat, "lat must be within [-90, 90]", nil)
	}
	if in.Lon < -180 || in.Lon > 180 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidLon, "lon must be within [-180, 180]", nil)
	}

	logger := s.log(ctx)
	var (
		reading    *risk.VegetationReading
		imageryErr error
		observed   risk.WeatherObservation
		weatherErr error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.imagery == nil {
			imageryErr = errors.New("imagery provider not configured")
			return nil
		}
		reading, imageryErr = s.imagery.FetchVegetation(gCtx, in.BBox)
		return nil
	})
	g.Go(func() error {
		if s.weather == nil {
			weatherErr = errors.New("weather provider not configured")
			return nil
		}
		observed, weatherErr = s.weather.FetchCurrent(gCtx, in.Lat, in.Lon)
		return nil
	})
	// Neither fetch returns an error; Wait only joins them.
	_ = g.Wait()

	if imageryErr != nil {
		reading = nil
	}
	series, vegSource := risk.PrepareSeries(reading, s.newSynth())
	if vegSource.Degraded() {
		attrs := []any{"vegetation_source", vegSource, "bbox", in.BBox}
		if imageryErr != nil {
			attrs = append(attrs, "error", imageryErr)
		}
		logger.WarnContext(ctx, "imagery unavailable, using synthetic vegetation series", attrs...)
		s.metrics.RecordDegraded(ctx, degradedImagery)
	}

	weatherSource := WeatherLive
	if weatherErr != nil {
		observed = risk.DefaultWeather(s.clock.Now())
		weatherSource = WeatherDefault
		logger.WarnContext(ctx, "weather unavailable, using default conditions",
			"lat", in.Lat,
			"lon", in.Lon,
			"error", weatherErr,
		)
		s.metrics.RecordDegraded(ctx, degradedWeather)
	}

	result, err := s.forecast(ctx, series, observed)
	if err != nil {
		return nil, err
	}

	report := &FullReport{
		ForecastReport: ForecastReport{
			ForecastResult:   *result,
			DistrictID:       in.DistrictID,
			VegetationSource: vegSource,
			WeatherSource:    weatherSource,
			Degraded:         vegSource.Degraded() || weatherSource == WeatherDefault,
		},
		CurrentNDVI: risk.Round3(series[len(series)-1]),
		NDVITrend:   risk.SeriesTrend(series),
		NDVISeries:  series,
		Weather:     observed,
	}

	origin := in.Origin
	if origin == "" {
		origin = types.ForecastOriginSatellite
	}
	s.record(ctx, &report.ForecastReport, origin, report)
	return report, nil
}

// forecast runs feature construction, the sequence model and the reducer.
func (s *Service) forecast(ctx context.Context, series []float64, weather risk.WeatherObservation) (*risk.ForecastResult, error) {
	features, err := risk.BuildFeatures(series, weather)
	if err != nil {
		if errors.Is(err, risk.ErrEmptySeries) {
			return nil, types.NewAppError(types.ErrCodeValidationEmptySeries, "ndvi_series must not be empty", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build features", err)
	}

	scores, err := s.models.Forecaster.Predict(ctx, features)
	if err != nil {
		return nil, types.AsAppError(err, types.ErrCodeUpstreamInference, "risk forecast failed")
	}
	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, types.NewAppError(types.ErrCodeInternalModelOutputInvalid,
				fmt.Sprintf("risk score for day %d is not finite", i+1), nil)
		}
	}

	result, err := risk.SummarizeForecast(scores)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalModelOutputInvalid, "sequence model output is invalid", err)
	}
	return result, nil
}

// resolveWeather merges caller-provided conditions over the defaults.
func (s *Service) resolveWeather(in *WeatherInput) (risk.WeatherObservation, WeatherSource) {
	obs := risk.DefaultWeather(s.clock.Now())
	if in == nil {
		return obs, WeatherDefault
	}
	if in.TemperatureC != nil {
		obs.TemperatureC = *in.TemperatureC
	}
	if in.HumidityPct != nil {
		obs.HumidityPct = *in.HumidityPct
	}
	if in.RainfallMM != nil {
		obs.RainfallMM = *in.RainfallMM
	}
	if in.DayOfYear != nil {
		obs.DayOfYear = *in.DayOfYear
	}
	return obs, WeatherSupplied
}

// record stores a district forecast and raises an alert when it reaches
// HIGH. Failures are logged; the caller already has its answer.
func (s *Service) record(ctx context.Context, report *ForecastReport, origin types.ForecastOrigin, body any) {
	if report.DistrictID == nil {
		return
	}
	districtID := *report.DistrictID
	logger := s.log(ctx)

	if s.store != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			logger.ErrorContext(ctx, "failed to encode forecast for storage", "district_id", districtID, "error", err)
		} else {
			stored := &types.StoredForecast{
				DistrictID:       districtID,
				Origin:           origin,
				MaxRiskScore:     report.MaxRiskScore,
				MaxRiskLevel:     string(report.MaxRiskLevel),
				PeakRiskDay:      report.PeakRiskDay,
				VegetationSource: string(report.VegetationSource),
				WeatherSource:    string(report.WeatherSource),
				Degraded:         report.Degraded,
				Report:           raw,
			}
			if err := s.store.Create(ctx, stored); err != nil {
				logger.ErrorContext(ctx, "failed to store forecast", "district_id", districtID, "error", err)
			}
		}
	}

	if report.MaxRiskLevel != risk.LevelHigh {
		return
	}
	s.metrics.RecordHighRisk(ctx, districtID)
	if s.alerts == nil {
		return
	}
	alert := types.RiskAlert{
		DistrictID:       districtID,
		MaxRiskScore:     report.MaxRiskScore,
		PeakRiskDay:      report.PeakRiskDay,
		Recommendation:   report.Recommendation,
		VegetationSource: string(report.VegetationSource),
		CreatedAt:        s.clock.Now(),
	}
	if err := s.alerts.Publish(ctx, alert); err != nil {
		logger.ErrorContext(ctx, "failed to publish risk alert", "district_id", districtID, "error", err)
	}
}

// recordScan stores a disease prediction and returns its ID, or "" when no
// store is configured or the write fails.
func (s *Service) recordScan(ctx context.Context, in DiseaseInput, report *risk.DiseaseReport) string {
	if s.scans == nil {
		return ""
	}
	logger := s.log(ctx)

	top5, err := json.Marshal(report.Top5)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode scan for storage", "error", err)
		return ""
	}
	cropType := in.CropType
	if cropType == "" {
		cropType = defaultCropType
	}
	scan := &types.StoredScan{
		CropType:       cropType,
		FieldLocation:  in.FieldLocation,
		Disease:        report.Disease,
		Confidence:     report.Confidence,
		RiskLevel:      string(report.RiskLevel),
		RiskScore:      report.RiskScore,
		Recommendation: report.Recommendation,
		Top5:           top5,
	}
	if err := s.scans.Create(ctx, scan); err != nil {
		logger.ErrorContext(ctx, "failed to store scan", "disease", report.Disease, "error", err)
		return ""
	}
	return scan.ID
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return types.LoggerFromContext(ctx, s.logger)
}
