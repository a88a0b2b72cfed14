package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"krishisat/internal/core"
	"krishisat/internal/types"
)

// Scan history paging bounds.
const (
	defaultScanLimit = 20
	maxScanLimit     = 100
)

// ScanReader reads stored disease scans.
type ScanReader interface {
	ListRecent(ctx context.Context, limit int) ([]types.StoredScan, error)
	Get(ctx context.Context, id string) (*types.StoredScan, error)
}

// ScanListResponse is the body of GET /v1/scans/history.
type ScanListResponse struct {
	Count int                `json:"count"`
	Scans []types.StoredScan `json:"scans"`
}

// ScanHandler serves the disease scan history.
type ScanHandler struct {
	scans  ScanReader
	logger *slog.Logger
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(scans ScanReader, logger *slog.Logger) *ScanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanHandler{scans: scans, logger: logger}
}

// RegisterRoutes mounts the scan endpoints under /scans.
func (h *ScanHandler) RegisterRoutes(r chi.Router) {
	r.Route("/scans", func(r chi.Router) {
		r.Get("/history", h.HandleHistory)
		r.Get("/{id}", h.HandleGet)
	})
}

// HandleHistory handles GET /v1/scans/history?limit=N, newest first.
func (h *ScanHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultScanLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > maxScanLimit {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
				"limit must be a number between 1 and 100", nil, map[string]any{"limit": limitStr}))
			return
		}
		limit = n
	}

	scans, err := h.scans.ListRecent(r.Context(), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ScanListResponse{
		Count: len(scans),
		Scans: scans,
	}})
}

// HandleGet handles GET /v1/scans/{id}.
func (h *ScanHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	if _, err := uuid.Parse(raw); err != nil {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidID,
			"scan id must be a UUID", err, map[string]any{"id": raw}))
		return
	}

	scan, err := h.scans.Get(r.Context(), raw)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: scan})
}
