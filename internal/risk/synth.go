package risk

import (
	"math"
	"math/rand/v2"
)

// Synthesis parameters for the fallback vegetation series.
const (
	synthBaseMin      = 0.35
	synthBaseMax      = 0.75
	synthStressProb   = 0.4
	stressedTrendMin  = -0.015
	stressedTrendMax  = -0.003
	steadyTrendMin    = -0.005
	steadyTrendMax    = 0.008
	synthDailyNoiseSD = 0.01
	levelNoiseSD      = 0.02
	synthFloor        = 0.1
	synthCeiling      = 0.95
)

// SyntheticSeries is a fabricated vegetation history. Stressed reports
// which trend regime produced it.
type SyntheticSeries struct {
	Values   []float64
	Stressed bool
}

// Synthesizer fabricates plausible vegetation histories when live imagery
// is unavailable. Each Synthesizer owns its random stream and is not safe
// for concurrent use; create one per request.
type Synthesizer struct {
	rng *rand.Rand
}

// NewSynthesizer returns a Synthesizer with an independently seeded stream.
func NewSynthesizer() *Synthesizer {
	return NewSeededSynthesizer(rand.Uint64(), rand.Uint64())
}

// NewSeededSynthesizer returns a Synthesizer with a reproducible stream.
func NewSeededSynthesizer(seed1, seed2 uint64) *Synthesizer {
	return &Synthesizer{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Synthesize draws a 30-day series that follows a single trend: declining
// when the series is stressed, flat to improving otherwise. Values stay in
// [0.1, 0.95] and are rounded to three decimals.
func (s *Synthesizer) Synthesize() SyntheticSeries {
	current := s.uniform(synthBaseMin, synthBaseMax)
	stressed := s.rng.Float64() < synthStressProb

	values := make([]float64, SeriesLength)
	for i := range values {
		var trend float64
		if stressed {
			trend = s.uniform(stressedTrendMin, stressedTrendMax)
		} else {
			trend = s.uniform(steadyTrendMin, steadyTrendMax)
		}
		noise := s.rng.NormFloat64() * synthDailyNoiseSD
		current = clamp(current+trend+noise, synthFloor, synthCeiling)
		values[i] = Round3(current)
	}
	return SyntheticSeries{Values: values, Stressed: stressed}
}

// AroundLevel expands a single aggregate reading into a 30-day series of
// independent noisy samples around it. No trend is implied.
func (s *Synthesizer) AroundLevel(level float64) []float64 {
	values := make([]float64, SeriesLength)
	for i := range values {
		values[i] = Round3(level + s.rng.NormFloat64()*levelNoiseSD)
	}
	return values
}

func (s *Synthesizer) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
