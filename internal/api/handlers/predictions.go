// Package handlers contains the HTTP handlers for the prediction and
// district endpoints.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"krishisat/internal/core"
	"krishisat/internal/districts"
	"krishisat/internal/predict"
	"krishisat/internal/risk"
	"krishisat/internal/types"
)

// Multipart fields of the disease upload. Only the image is required.
const (
	uploadField        = "file"
	cropTypeField      = "crop_type"
	fieldLocationField = "field_location"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the image size limit.
const multipartOverhead = 64 << 10

// PredictionService is the contract the prediction handler needs from
// predict.Service.
type PredictionService interface {
	PredictDisease(ctx context.Context, in predict.DiseaseInput) (*predict.DiseaseResult, error)
	PredictForecast(ctx context.Context, in predict.ForecastInput) (*predict.ForecastReport, error)
	PredictFull(ctx context.Context, in predict.FullInput) (*predict.FullReport, error)
}

// DistrictLookup resolves district IDs.
type DistrictLookup interface {
	Get(id int) (districts.District, bool)
}

// WeatherRequest carries optional caller-supplied conditions.
type WeatherRequest struct {
	Temperature *float64 `json:"temp" validate:"omitempty,gte=-60,lte=60"`
	Humidity    *float64 `json:"humidity" validate:"omitempty,gte=0,lte=100"`
	Rainfall    *float64 `json:"rainfall" validate:"omitempty,gte=0"`
	DayOfYear   *int     `json:"day_of_year" validate:"omitempty,gte=1,lte=366"`
}

// ForecastRequest is the body of POST /v1/predict/forecast.
type ForecastRequest struct {
	NDVISeries []float64       `json:"ndvi_series" validate:"required,min=7,dive,ndvi"`
	Weather    *WeatherRequest `json:"weather"`
	DistrictID *int            `json:"district_id" validate:"omitempty,gt=0"`
}

// ValidationWarnings flags series that will be padded or truncated.
func (r ForecastRequest) ValidationWarnings() []string {
	switch n := len(r.NDVISeries); {
	case n < risk.SeriesLength:
		return []string{"ndvi_series has fewer than 30 values and was padded with the earliest value"}
	case n > risk.SeriesLength:
		return []string{"ndvi_series has more than 30 values; only the most recent 30 were used"}
	}
	return nil
}

// FullRequest is the body of POST /v1/predict/full.
type FullRequest struct {
	BBox       []float64 `json:"bbox" validate:"required,len=4,bbox"`
	Lat        *float64  `json:"lat" validate:"required,latitude"`
	Lon        *float64  `json:"lon" validate:"required,longitude"`
	DistrictID *int      `json:"district_id" validate:"omitempty,gt=0"`
}

// PredictionHandler maps the /v1/predict endpoints to the prediction service.
type PredictionHandler struct {
	service        PredictionService
	districts      DistrictLookup
	validator      *core.Validator
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler. A nil district lookup
// accepts any district ID.
func NewPredictionHandler(
	svc PredictionService,
	lookup DistrictLookup,
	val *core.Validator,
	maxUploadBytes int64,
	logger *slog.Logger,
) *PredictionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionHandler{
		service:        svc,
		districts:      lookup,
		validator:      val,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes mounts the prediction endpoints under /predict.
func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/predict", func(r chi.Router) {
		r.Post("/disease", h.HandleDisease)
		r.Post("/forecast", h.HandleForecast)
		r.Post("/full", h.HandleFull)
	})
}

// HandleDisease handles POST /v1/predict/disease.
func (h *PredictionHandler) HandleDisease(w http.ResponseWriter, r *http.Request) {
	img, err := h.readUpload(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	report, err := h.service.PredictDisease(r.Context(), predict.DiseaseInput{
		Image:         img,
		CropType:      strings.TrimSpace(r.PostFormValue(cropTypeField)),
		FieldLocation: strings.TrimSpace(r.PostFormValue(fieldLocationField)),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}

// readUpload extracts the image part. The whole request body is capped so
// oversized uploads fail before they are buffered.
func (h *PredictionHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return nil, h.tooLarge(err)
		case errors.Is(err, http.ErrNotMultipart):
			return nil, types.NewAppError(types.ErrCodeValidationUnsupportedMedia, "request must be multipart/form-data", err)
		case errors.Is(err, http.ErrMissingFile):
			return nil, types.NewAppError(types.ErrCodeValidationMissingField, "file is required", err)
		default:
			return nil, types.NewAppError(types.ErrCodeValidationInvalidImage, "malformed multipart body", err)
		}
	}
	defer file.Close()

	mediaType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationUnsupportedMedia,
			"only image files are accepted", nil, map[string]any{"content_type": mediaType})
	}
	if header.Size > h.maxUploadBytes {
		return nil, h.tooLarge(nil)
	}

	img, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidImage, "failed to read uploaded file", err)
	}
	if int64(len(img)) > h.maxUploadBytes {
		return nil, h.tooLarge(nil)
	}
	return img, nil
}

func (h *PredictionHandler) tooLarge(err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationPayloadTooLarge,
		"uploaded file is too large", err, map[string]any{"max_bytes": h.maxUploadBytes})
}

// HandleForecast handles POST /v1/predict/forecast.
func (h *PredictionHandler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.checkDistrict(req.DistrictID); err != nil {
		core.Error(w, r, err)
		return
	}

	in := predict.ForecastInput{Series: req.NDVISeries, DistrictID: req.DistrictID}
	if req.Weather != nil {
		in.Weather = &predict.WeatherInput{
			TemperatureC: req.Weather.Temperature,
			HumidityPct:  req.Weather.Humidity,
			RainfallMM:   req.Weather.Rainfall,
			DayOfYear:    req.Weather.DayOfYear,
		}
	}

	report, err := h.service.PredictForecast(r.Context(), in)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report, Meta: meta(req.ValidationWarnings())})
}

// HandleFull handles POST /v1/predict/full.
func (h *PredictionHandler) HandleFull(w http.ResponseWriter, r *http.Request) {
	var req FullRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.checkDistrict(req.DistrictID); err != nil {
		core.Error(w, r, err)
		return
	}

	report, err := h.service.PredictFull(r.Context(), predict.FullInput{
		BBox:       risk.BBox(req.BBox),
		Lat:        *req.Lat,
		Lon:        *req.Lon,
		DistrictID: req.DistrictID,
		Origin:     types.ForecastOriginSatellite,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var warnings []string
	if report.Degraded {
		warnings = append(warnings, degradedWarning(report))
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report, Meta: meta(warnings)})
}

func (h *PredictionHandler) checkDistrict(id *int) error {
	if id == nil || h.districts == nil {
		return nil
	}
	if _, ok := h.districts.Get(*id); !ok {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundDistrict,
			"district not found", nil, map[string]any{"district_id": *id})
	}
	return nil
}

func degradedWarning(report *predict.FullReport) string {
	var parts []string
	if report.VegetationSource.Degraded() {
		parts = append(parts, "vegetation data is "+string(report.VegetationSource))
	}
	if report.WeatherSource == predict.WeatherDefault {
		parts = append(parts, "weather uses default values")
	}
	return "degraded mode: " + strings.Join(parts, "; ")
}

func meta(warnings []string) *core.ResponseMeta {
	if len(warnings) == 0 {
		return nil
	}
	return &core.ResponseMeta{Warnings: warnings}
}
