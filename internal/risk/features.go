package risk

import "errors"

const (
	// SeriesLength is the number of daily rows the sequence model consumes.
	SeriesLength = 30
	// FeatureCount is the width of each row.
	FeatureCount = 5

	daysPerYear = 365
)

// ErrEmptySeries is returned when there is no vegetation history to build
// features from. Padding repeats the earliest row, so at least one value is
// required.
var ErrEmptySeries = errors.New("vegetation series is empty")

// FeatureRow is one day of model input:
// [vegetation, temperature, humidity, rainfall, seasonal position].
type FeatureRow [FeatureCount]float64

// FeatureVector is the fixed-length model input, oldest day first.
type FeatureVector [SeriesLength]FeatureRow

// BuildFeatures keeps the last SeriesLength values of series and emits one
// normalized row per value. Shorter inputs are left-padded by repeating the
// earliest row. The weather columns are constant across rows.
func BuildFeatures(series []float64, weather WeatherObservation) (FeatureVector, error) {
	var out FeatureVector
	if len(series) == 0 {
		return out, ErrEmptySeries
	}
	if len(series) > SeriesLength {
		series = series[len(series)-SeriesLength:]
	}

	temp := (weather.TemperatureC - 15) / 25
	humidity := weather.HumidityPct / 100
	rainfall := weather.RainfallMM / 50

	pad := SeriesLength - len(series)
	for i, v := range series {
		out[pad+i] = FeatureRow{v, temp, humidity, rainfall, seasonal(weather.DayOfYear, i)}
	}
	for i := 0; i < pad; i++ {
		out[i] = out[pad]
	}
	return out, nil
}

// seasonal returns the position of day-of-year plus offset on a 365-day
// cycle, normalized to [0,1).
func seasonal(dayOfYear, offset int) float64 {
	m := (dayOfYear + offset) % daysPerYear
	if m < 0 {
		m += daysPerYear
	}
	return float64(m) / daysPerYear
}
