package risk

import "time"

// Fallback values used when a weather reading is missing a field or the
// provider cannot be reached.
const (
	DefaultTemperatureC = 28.0
	DefaultHumidityPct  = 65.0
	DefaultRainfallMM   = 0.0
)

// WeatherObservation is a single current-conditions reading. RainfallMM
// covers the trailing one-hour window.
type WeatherObservation struct {
	TemperatureC float64 `json:"temp"`
	HumidityPct  float64 `json:"humidity"`
	RainfallMM   float64 `json:"rainfall"`
	DayOfYear    int     `json:"day_of_year"`
	Description  string  `json:"description,omitempty"`
}

// DefaultWeather returns the documented defaults with the day of year taken
// from now.
func DefaultWeather(now time.Time) WeatherObservation {
	return WeatherObservation{
		TemperatureC: DefaultTemperatureC,
		HumidityPct:  DefaultHumidityPct,
		RainfallMM:   DefaultRainfallMM,
		DayOfYear:    now.YearDay(),
		Description:  "N/A",
	}
}
