package risk

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// TopK is the number of ranked classes reported per image.
	TopK = 5
	// HealthyRiskScore is reported whenever the top class is a healthy label.
	HealthyRiskScore = 0.05
)

// ErrInsufficientClasses is returned when the classifier reports fewer
// classes than the report ranks.
var ErrInsufficientClasses = errors.New("classifier returned fewer classes than required")

// ClassProbability is one entry of the classifier's output distribution.
type ClassProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// DiseasePrediction is a ranked class with confidence in percent.
type DiseasePrediction struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// DiseaseReport is the reduced classifier output for one image.
type DiseaseReport struct {
	Disease        string              `json:"disease"`
	Confidence     float64             `json:"confidence"`
	RiskLevel      Level               `json:"risk_level"`
	RiskScore      float64             `json:"risk_score"`
	Recommendation string              `json:"recommendation"`
	Top5           []DiseasePrediction `json:"top5"`
}

// SummarizeDisease ranks the distribution and derives the risk fields from
// the top entry. Ties keep the classifier's ordering.
func SummarizeDisease(probs []ClassProbability) (*DiseaseReport, error) {
	if len(probs) < TopK {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientClasses, len(probs), TopK)
	}

	ranked := make([]ClassProbability, len(probs))
	copy(ranked, probs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})

	top := make([]DiseasePrediction, TopK)
	for i := range top {
		top[i] = DiseasePrediction{
			Disease:    ranked[i].Label,
			Confidence: round(ranked[i].Probability*100, 2),
		}
	}

	best := top[0]
	score := Round3(best.Confidence / 100)
	if strings.Contains(strings.ToLower(best.Disease), "healthy") {
		score = HealthyRiskScore
	}
	level := Classify(score)

	return &DiseaseReport{
		Disease:        best.Disease,
		Confidence:     best.Confidence,
		RiskLevel:      level,
		RiskScore:      score,
		Recommendation: Recommend(best.Disease, level),
		Top5:           top,
	}, nil
}
