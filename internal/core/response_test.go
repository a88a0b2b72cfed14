package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"krishisat/internal/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}

func TestJSON_WritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, APIResponse{Data: map[string]int{"peak_risk_day": 4}})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":{"peak_risk_day":4}}` {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if decodeError(t, rec).Code != string(types.ErrCodeInternalUnexpected) {
		t.Error("expected internal_unexpected_error code")
	}
}

func TestError_AppErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   types.ErrorCode
		status int
	}{
		{types.ErrCodeValidationEmptySeries, http.StatusBadRequest},
		{types.ErrCodeValidationPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{types.ErrCodeValidationUnsupportedMedia, http.StatusUnsupportedMediaType},
		{types.ErrCodeNotFoundDistrict, http.StatusNotFound},
		{types.ErrCodeUpstreamInference, http.StatusServiceUnavailable},
		{types.ErrCodeUpstreamImagery, http.StatusBadGateway},
		{types.ErrCodeInternalModelOutputInvalid, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-7"))
			rec := httptest.NewRecorder()

			Error(rec, req, fmt.Errorf("wrapped: %w", types.NewAppError(tt.code, "something failed", nil)))

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			detail := decodeError(t, rec)
			if detail.Code != string(tt.code) || detail.RequestID != "req-7" {
				t.Errorf("unexpected detail: %+v", detail)
			}
		})
	}
}

func TestError_GenericErrorHidesMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	detail := decodeError(t, rec)
	if strings.Contains(detail.Message, "password") {
		t.Error("internal error message leaked to client")
	}
}

func TestError_IncludesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := types.NewAppErrorWithDetails(types.ErrCodeValidationFailed, "bad input", nil, map[string]any{"field": "lat"})
	Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), err)

	if decodeError(t, rec).Details["field"] != "lat" {
		t.Error("expected details to be forwarded")
	}
}

type decodeTarget struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    types.ErrorCode
		wantErr bool
	}{
		{name: "valid", body: `{"lat":18.5,"lon":73.8}`},
		{name: "syntax", body: `{"lat":`, code: types.ErrCodeValidationInvalidJSON, wantErr: true},
		{name: "wrong type", body: `{"lat":"north"}`, code: types.ErrCodeValidationInvalidJSON, wantErr: true},
		{name: "unknown field", body: `{"lat":1,"alt":2}`, code: types.ErrCodeValidationInvalidJSON, wantErr: true},
		{name: "empty", body: ``, code: types.ErrCodeValidationInvalidJSON, wantErr: true},
		{name: "trailing value", body: `{"lat":1}{"lat":2}`, code: types.ErrCodeValidationInvalidJSON, wantErr: true},
		{name: "too large", body: `{"lat":1,"lon":` + strings.Repeat("1", maxRequestBodySize) + `}`, code: types.ErrCodeValidationPayloadTooLarge, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst decodeTarget
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if dst.Lat != 18.5 || dst.Lon != 73.8 {
					t.Errorf("unexpected decode result: %+v", dst)
				}
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T (%v)", err, err)
			}
			if appErr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, appErr.Code)
			}
		})
	}
}
