package predict

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"krishisat/internal/districts"
	"krishisat/internal/risk"
	"krishisat/internal/types"
)

// SweepConcurrency bounds how many districts are forecast at once.
const SweepConcurrency = 4

// RecentForecastCounter reports how many forecasts a district received
// since a point in time.
type RecentForecastCounter interface {
	CountSince(ctx context.Context, districtID int, since time.Time) (int, error)
}

// SweepMetrics receives the sweep summary.
type SweepMetrics interface {
	RecordSweep(ctx context.Context, processed, failed int)
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Processed int            `json:"processed"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	HighRisk  []int          `json:"high_risk_districts"`
	Errors    map[int]string `json:"errors,omitempty"`
}

// Sweeper runs the full pipeline for every district in a catalog.
type Sweeper struct {
	service *Service
	catalog *districts.Catalog
	recent  RecentForecastCounter
	metrics SweepMetrics
	// minInterval skips districts forecast more recently than this. Zero
	// disables the check.
	minInterval time.Duration
	logger      *slog.Logger
	clock       types.Clock
}

// NewSweeper creates a Sweeper. recent and metrics may be nil.
func NewSweeper(service *Service, catalog *districts.Catalog, recent RecentForecastCounter, metrics SweepMetrics, minInterval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		service:     service,
		catalog:     catalog,
		recent:      recent,
		metrics:     metrics,
		minInterval: minInterval,
		logger:      logger,
		clock:       service.clock,
	}
}

// Run forecasts each district independently. A failing district is
// recorded in the result and does not stop the others.
func (w *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	var (
		mu     sync.Mutex
		result = &SweepResult{Errors: make(map[int]string)}
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(SweepConcurrency)

	for _, d := range w.catalog.List() {
		g.Go(func() error {
			if w.shouldSkip(gCtx, d.ID) {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			id := d.ID
			report, err := w.service.PredictFull(gCtx, FullInput{
				BBox:       d.BBox,
				Lat:        d.Lat,
				Lon:        d.Lon,
				DistrictID: &id,
				Origin:     types.ForecastOriginSweep,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.logger.ErrorContext(gCtx, "district sweep failed", "district_id", d.ID, "district", d.Name, "error", err)
				result.Failed++
				result.Errors[d.ID] = err.Error()
				return nil
			}
			result.Processed++
			if report.MaxRiskLevel == risk.LevelHigh {
				result.HighRisk = append(result.HighRisk, d.ID)
			}
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(result.HighRisk)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if w.metrics != nil {
		w.metrics.RecordSweep(ctx, result.Processed, result.Failed)
	}
	w.logger.InfoContext(ctx, "district sweep complete",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"high_risk", result.HighRisk,
	)
	return result, nil
}

func (w *Sweeper) shouldSkip(ctx context.Context, districtID int) bool {
	if w.recent == nil || w.minInterval <= 0 {
		return false
	}
	n, err := w.recent.CountSince(ctx, districtID, w.clock.Now().Add(-w.minInterval))
	if err != nil {
		w.logger.WarnContext(ctx, "recent forecast check failed, sweeping anyway", "district_id", districtID, "error", err)
		return false
	}
	return n > 0
}
