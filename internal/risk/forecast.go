package risk

import (
	"errors"
	"fmt"
)

// ForecastDays is the horizon of the sequence model.
const ForecastDays = 7

// forecastLabel is the generic label used to look up forecast advice.
const forecastLabel = "disease"

// ErrForecastLength is returned when the model does not emit one score per
// forecast day.
var ErrForecastLength = errors.New("forecast must contain exactly 7 daily scores")

// DailyRisk is the forecast for one day. Day is 1-based.
type DailyRisk struct {
	Day       int     `json:"day"`
	RiskScore float64 `json:"risk_score"`
	RiskLevel Level   `json:"risk_level"`
}

// ForecastResult is the reduced sequence-model output.
type ForecastResult struct {
	Forecast       []DailyRisk `json:"forecast"`
	MaxRiskScore   float64     `json:"max_risk_score"`
	MaxRiskLevel   Level       `json:"max_risk_level"`
	PeakRiskDay    int         `json:"peak_risk_day"`
	Recommendation string      `json:"recommendation"`
}

// SummarizeForecast reduces seven daily scores. Scores are rounded to three
// decimals first; the maximum, its level and the peak day are taken over the
// rounded values so the report never pairs a score with another score's level.
// The peak is the first day holding the maximum.
func SummarizeForecast(scores []float64) (*ForecastResult, error) {
	if len(scores) != ForecastDays {
		return nil, fmt.Errorf("%w: got %d", ErrForecastLength, len(scores))
	}

	days := make([]DailyRisk, ForecastDays)
	peak := 0
	for i, s := range scores {
		score := Round3(s)
		days[i] = DailyRisk{
			Day:       i + 1,
			RiskScore: score,
			RiskLevel: Classify(score),
		}
		if score > days[peak].RiskScore {
			peak = i
		}
	}

	maxScore := days[peak].RiskScore
	level := Classify(maxScore)
	return &ForecastResult{
		Forecast:       days,
		MaxRiskScore:   maxScore,
		MaxRiskLevel:   level,
		PeakRiskDay:    peak + 1,
		Recommendation: Recommend(forecastLabel, level),
	}, nil
}
