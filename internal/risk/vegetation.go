package risk

import "fmt"

// VegetationSource records where the vegetation history fed to the
// forecaster came from.
type VegetationSource string

const (
	// SourceSupplied is a series provided by the caller.
	SourceSupplied VegetationSource = "supplied"
	// SourceLive is a full daily series from satellite imagery.
	SourceLive VegetationSource = "live"
	// SourceAggregate is a series synthesized around a single imagery reading.
	SourceAggregate VegetationSource = "aggregate"
	// SourceSynthetic is a fully synthesized series.
	SourceSynthetic VegetationSource = "synthetic"
)

// Degraded reports whether the source is a fabricated stand-in for
// measured data.
func (s VegetationSource) Degraded() bool {
	return s == SourceAggregate || s == SourceSynthetic
}

// BBox is a WGS84 bounding box: [minLon, minLat, maxLon, maxLat].
type BBox [4]float64

// Validate checks coordinate ranges and ordering.
func (b BBox) Validate() error {
	minLon, minLat, maxLon, maxLat := b[0], b[1], b[2], b[3]
	switch {
	case minLon < -180 || maxLon > 180:
		return fmt.Errorf("longitude out of range [-180, 180]: %v", b)
	case minLat < -90 || maxLat > 90:
		return fmt.Errorf("latitude out of range [-90, 90]: %v", b)
	case minLon >= maxLon || minLat >= maxLat:
		return fmt.Errorf("bbox minimum must be below maximum: %v", b)
	}
	return nil
}

// VegetationReading is what an imagery lookup produced: a full daily
// history, or only a single aggregate level when too few clear
// observations exist.
type VegetationReading struct {
	Series    []float64
	Aggregate *float64
}

// PrepareSeries turns an imagery result into a forecaster-ready history,
// falling back to synthesis when the reading is missing or partial. A nil
// reading means the lookup failed.
func PrepareSeries(reading *VegetationReading, synth *Synthesizer) ([]float64, VegetationSource) {
	switch {
	case reading != nil && len(reading.Series) >= SeriesLength:
		series := reading.Series[len(reading.Series)-SeriesLength:]
		out := make([]float64, SeriesLength)
		copy(out, series)
		return out, SourceLive
	case reading != nil && reading.Aggregate != nil:
		return synth.AroundLevel(*reading.Aggregate), SourceAggregate
	default:
		return synth.Synthesize().Values, SourceSynthetic
	}
}

// Trend describes the direction of recent vegetation change.
type Trend string

const (
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// trendWindow is how many days back the trend comparison looks.
const trendWindow = 7

// SeriesTrend compares the latest value with the one a week earlier. Series
// shorter than a week are reported as stable.
func SeriesTrend(series []float64) Trend {
	if len(series) < trendWindow {
		return TrendStable
	}
	if series[len(series)-1] < series[len(series)-trendWindow] {
		return TrendDeclining
	}
	return TrendStable
}
