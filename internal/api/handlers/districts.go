package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"krishisat/internal/core"
	"krishisat/internal/districts"
	"krishisat/internal/types"
)

// DistrictCatalog lists and resolves districts.
type DistrictCatalog interface {
	List() []districts.District
	Get(id int) (districts.District, bool)
}

// LatestForecastReader returns the most recent stored forecast for a
// district, or a not_found_forecast error.
type LatestForecastReader interface {
	LatestByDistrict(ctx context.Context, districtID int) (*types.StoredForecast, error)
}

// DistrictListResponse is the body of GET /v1/districts.
type DistrictListResponse struct {
	Count     int                  `json:"count"`
	Districts []districts.District `json:"districts"`
}

// DistrictRiskResponse is the body of GET /v1/districts/{id}/risk. Exactly
// one of Forecast or Message is set.
type DistrictRiskResponse struct {
	DistrictID int                   `json:"district_id"`
	Forecast   *types.StoredForecast `json:"forecast,omitempty"`
	Message    string                `json:"message,omitempty"`
}

// noForecastMessage is returned for districts with no stored forecast.
const noForecastMessage = "No forecast available yet"

// DistrictHandler serves the district catalog and stored risk.
type DistrictHandler struct {
	catalog   DistrictCatalog
	forecasts LatestForecastReader
	logger    *slog.Logger
}

// NewDistrictHandler creates a DistrictHandler. A nil forecast reader
// reports every district as having no forecast.
func NewDistrictHandler(catalog DistrictCatalog, forecasts LatestForecastReader, logger *slog.Logger) *DistrictHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DistrictHandler{catalog: catalog, forecasts: forecasts, logger: logger}
}

// RegisterRoutes mounts the district endpoints under /districts.
func (h *DistrictHandler) RegisterRoutes(r chi.Router) {
	r.Route("/districts", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/risk", h.HandleRisk)
	})
}

// HandleList handles GET /v1/districts.
func (h *DistrictHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list := h.catalog.List()
	w.Header().Set("Cache-Control", "public, max-age=3600")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: DistrictListResponse{
		Count:     len(list),
		Districts: list,
	}})
}

// HandleGet handles GET /v1/districts/{id}.
func (h *DistrictHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.lookup(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: d})
}

// HandleRisk handles GET /v1/districts/{id}/risk.
func (h *DistrictHandler) HandleRisk(w http.ResponseWriter, r *http.Request) {
	d, err := h.lookup(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := DistrictRiskResponse{DistrictID: d.ID, Message: noForecastMessage}
	if h.forecasts != nil {
		stored, err := h.forecasts.LatestByDistrict(r.Context(), d.ID)
		var appErr *types.AppError
		switch {
		case err == nil:
			resp.Forecast = stored
			resp.Message = ""
		case errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundForecast:
		default:
			core.Error(w, r, err)
			return
		}
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

func (h *DistrictHandler) lookup(r *http.Request) (districts.District, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return districts.District{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidID,
			"district id must be a positive integer", err, map[string]any{"id": raw})
	}
	d, ok := h.catalog.Get(id)
	if !ok {
		return districts.District{}, types.NewAppErrorWithDetails(types.ErrCodeNotFoundDistrict,
			"district not found", nil, map[string]any{"district_id": id})
	}
	return d, nil
}
