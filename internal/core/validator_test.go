package core

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"

	"krishisat/internal/types"
)

type testWeather struct {
	Humidity *float64 `json:"humidity" validate:"omitempty,gte=0,lte=100"`
}

type testForecastRequest struct {
	NDVISeries []float64    `json:"ndvi_series" validate:"required,min=7,dive,ndvi"`
	Weather    *testWeather `json:"weather"`
}

func (r testForecastRequest) ValidationWarnings() []string {
	if len(r.NDVISeries) < 30 {
		return []string{"ndvi_series padded to 30 values"}
	}
	return nil
}

type testFullRequest struct {
	BBox []float64 `json:"bbox" validate:"required,len=4,bbox"`
	Lat  *float64  `json:"lat" validate:"required,latitude"`
	Lon  *float64  `json:"lon" validate:"required,longitude"`
}

func ptr[T any](v T) *T { return &v }

func series(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestValidator_ForecastRequest(t *testing.T) {
	v := NewValidator(testLogger())

	tests := []struct {
		name      string
		req       testForecastRequest
		wantCode  types.ErrorCode
		wantField string
	}{
		{name: "valid", req: testForecastRequest{NDVISeries: series(30, 0.5)}},
		{name: "missing series", req: testForecastRequest{}, wantCode: types.ErrCodeValidationMissingField, wantField: "ndvi_series"},
		{name: "too short", req: testForecastRequest{NDVISeries: series(3, 0.5)}, wantCode: types.ErrCodeValidationFailed, wantField: "ndvi_series"},
		{
			name:      "ndvi out of range",
			req:       testForecastRequest{NDVISeries: append(series(7, 0.4), 1.5)},
			wantCode:  types.ErrCodeValidationFailed,
			wantField: "ndvi_series[7]",
		},
		{
			name:      "nested weather",
			req:       testForecastRequest{NDVISeries: series(7, 0.4), Weather: &testWeather{Humidity: ptr(120.0)}},
			wantCode:  types.ErrCodeValidationFailed,
			wantField: "weather.humidity",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.req)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %v", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, appErr.Code)
			}
			verrs, ok := appErr.Details["validation_errors"].([]ValidationError)
			if !ok || len(verrs) == 0 {
				t.Fatalf("expected validation_errors details, got %v", appErr.Details)
			}
			if verrs[0].Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, verrs[0].Field)
			}
		})
	}
}

func TestValidator_FullRequest(t *testing.T) {
	v := NewValidator(testLogger())

	tests := []struct {
		name     string
		req      testFullRequest
		wantCode types.ErrorCode
	}{
		{name: "valid", req: testFullRequest{BBox: []float64{73.7, 18.4, 74.0, 18.7}, Lat: ptr(18.5), Lon: ptr(73.8)}},
		{name: "inverted bbox", req: testFullRequest{BBox: []float64{74.0, 18.4, 73.7, 18.7}, Lat: ptr(18.5), Lon: ptr(73.8)}, wantCode: types.ErrCodeValidationInvalidBBox},
		{name: "bbox out of range", req: testFullRequest{BBox: []float64{-190, 18.4, 73.7, 18.7}, Lat: ptr(18.5), Lon: ptr(73.8)}, wantCode: types.ErrCodeValidationInvalidBBox},
		{name: "bbox wrong length", req: testFullRequest{BBox: []float64{73.7, 18.4, 74.0}, Lat: ptr(18.5), Lon: ptr(73.8)}, wantCode: types.ErrCodeValidationFailed},
		{name: "bad latitude", req: testFullRequest{BBox: []float64{73.7, 18.4, 74.0, 18.7}, Lat: ptr(95.0), Lon: ptr(73.8)}, wantCode: types.ErrCodeValidationInvalidLat},
		{name: "bad longitude", req: testFullRequest{BBox: []float64{73.7, 18.4, 74.0, 18.7}, Lat: ptr(18.5), Lon: ptr(200.0)}, wantCode: types.ErrCodeValidationInvalidLon},
		{name: "missing lat", req: testFullRequest{BBox: []float64{73.7, 18.4, 74.0, 18.7}, Lon: ptr(73.8)}, wantCode: types.ErrCodeValidationMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.req)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) || appErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestValidator_Warnings(t *testing.T) {
	v := NewValidator(testLogger())

	result := v.ValidateStructWithWarnings(testForecastRequest{NDVISeries: series(10, 0.3)})
	if !result.IsValid() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", result.Warnings)
	}

	result = v.ValidateStructWithWarnings(testForecastRequest{NDVISeries: series(40, 0.3)})
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings for a full series, got %v", result.Warnings)
	}

	result = v.ValidateStructWithWarnings(testForecastRequest{NDVISeries: series(3, 0.3)})
	if result.IsValid() {
		t.Fatal("expected errors for a short series")
	}
	if len(result.Warnings) != 0 {
		t.Error("warnings should not be reported for invalid requests")
	}
}

func TestTagToErrorCode(t *testing.T) {
	tests := map[string]types.ErrorCode{
		"required":      types.ErrCodeValidationMissingField,
		"required_with": types.ErrCodeValidationMissingField,
		"latitude":      types.ErrCodeValidationInvalidLat,
		"longitude":     types.ErrCodeValidationInvalidLon,
		"bbox":          types.ErrCodeValidationInvalidBBox,
		"ndvi":          types.ErrCodeValidationFailed,
		"min":           types.ErrCodeValidationFailed,
	}
	for tag, want := range tests {
		if got := tagToErrorCode(tag); got != want {
			t.Errorf("tagToErrorCode(%q) = %s, want %s", tag, got, want)
		}
	}
}

func TestMustRegister_PanicsOnBadTag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an empty validation tag")
		}
	}()
	mustRegister(validator.New(), "", validateNDVI)
}
