// Package risk holds the pure forecasting and diagnosis logic: severity
// banding, feature construction for the sequence model, fallback series
// synthesis, and the reducers that turn raw model output into reports.
//
// Nothing in this package performs I/O. Model inference and data fetching
// are supplied by callers.
package risk

import "math"

// Level is the discrete severity tier attached to every risk score.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Band thresholds. Each tier includes its lower bound.
const (
	HighThreshold   = 0.65
	MediumThreshold = 0.35
)

// Classify maps a score to its tier. It is total over float64: scores
// outside [0,1] still classify, and NaN falls through to LOW.
func Classify(score float64) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Round3 rounds to the three decimals every reported score carries.
func Round3(v float64) float64 {
	return round(v, 3)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
