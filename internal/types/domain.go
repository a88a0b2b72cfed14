package types

import (
	"encoding/json"
	"time"
)

// ForecastOrigin records which entry point produced a stored forecast.
type ForecastOrigin string

const (
	ForecastOriginManual    ForecastOrigin = "manual"
	ForecastOriginSatellite ForecastOrigin = "satellite"
	ForecastOriginSweep     ForecastOrigin = "sweep"
)

// StoredForecast is the persisted summary of one forecast run for a
// district. Report holds the full response body as returned to the caller.
type StoredForecast struct {
	ID               string          `json:"id"`
	DistrictID       int             `json:"district_id"`
	Origin           ForecastOrigin  `json:"origin"`
	MaxRiskScore     float64         `json:"max_risk_score"`
	MaxRiskLevel     string          `json:"max_risk_level"`
	PeakRiskDay      int             `json:"peak_risk_day"`
	VegetationSource string          `json:"vegetation_source"`
	WeatherSource    string          `json:"weather_source"`
	Degraded         bool            `json:"degraded"`
	Report           json.RawMessage `json:"report"`
	CreatedAt        time.Time       `json:"created_at"`
}

// StoredScan is a persisted disease prediction. The uploaded image itself is
// not kept.
type StoredScan struct {
	ID             string          `json:"scan_id"`
	CropType       string          `json:"crop_type"`
	FieldLocation  string          `json:"field_location"`
	Disease        string          `json:"disease"`
	Confidence     float64         `json:"confidence"`
	RiskLevel      string          `json:"risk_level"`
	RiskScore      float64         `json:"risk_score"`
	Recommendation string          `json:"recommendation"`
	Top5           json.RawMessage `json:"top5"`
	ScannedAt      time.Time       `json:"scanned_at"`
}

// RiskAlert is the message published when a district forecast reaches the
// HIGH band.
type RiskAlert struct {
	AlertID          string    `json:"alert_id"`
	DistrictID       int       `json:"district_id"`
	MaxRiskScore     float64   `json:"max_risk_score"`
	PeakRiskDay      int       `json:"peak_risk_day"`
	Recommendation   string    `json:"recommendation"`
	VegetationSource string    `json:"vegetation_source"`
	CreatedAt        time.Time `json:"created_at"`
}
