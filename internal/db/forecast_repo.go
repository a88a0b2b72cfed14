package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"krishisat/internal/types"
)

// ForecastRepository stores forecast reports in the district_forecasts table.
//
//	CREATE TABLE district_forecasts (
//	    id                UUID PRIMARY KEY,
//	    district_id       INTEGER NOT NULL,
//	    origin            TEXT NOT NULL,
//	    max_risk_score    DOUBLE PRECISION NOT NULL,
//	    max_risk_level    TEXT NOT NULL,
//	    peak_risk_day     SMALLINT NOT NULL,
//	    vegetation_source TEXT NOT NULL,
//	    weather_source    TEXT NOT NULL,
//	    degraded          BOOLEAN NOT NULL DEFAULT FALSE,
//	    report            JSONB NOT NULL,
//	    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX district_forecasts_latest ON district_forecasts (district_id, created_at DESC);
type ForecastRepository struct {
	db DBTX
}

// NewForecastRepository creates a ForecastRepository backed by the given
// database connection (pool or transaction).
func NewForecastRepository(db DBTX) *ForecastRepository {
	return &ForecastRepository{db: db}
}

// Create inserts f, assigning a UUID when f.ID is empty. CreatedAt is set
// from the database clock.
func (r *ForecastRepository) Create(ctx context.Context, f *types.StoredForecast) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if len(f.Report) == 0 {
		f.Report = []byte("{}")
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO district_forecasts (
			id, district_id, origin, max_risk_score, max_risk_level, peak_risk_day,
			vegetation_source, weather_source, degraded, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		f.ID,
		f.DistrictID,
		string(f.Origin),
		f.MaxRiskScore,
		f.MaxRiskLevel,
		f.PeakRiskDay,
		f.VegetationSource,
		f.WeatherSource,
		f.Degraded,
		f.Report,
	).Scan(&f.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store forecast", err)
	}
	return nil
}

// LatestByDistrict returns the most recent forecast for districtID.
// Returns ErrCodeNotFoundForecast when the district has none.
func (r *ForecastRepository) LatestByDistrict(ctx context.Context, districtID int) (*types.StoredForecast, error) {
	var (
		f      types.StoredForecast
		origin string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, district_id, origin, max_risk_score, max_risk_level, peak_risk_day,
		        vegetation_source, weather_source, degraded, report, created_at
		 FROM district_forecasts
		 WHERE district_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		districtID,
	).Scan(
		&f.ID,
		&f.DistrictID,
		&origin,
		&f.MaxRiskScore,
		&f.MaxRiskLevel,
		&f.PeakRiskDay,
		&f.VegetationSource,
		&f.WeatherSource,
		&f.Degraded,
		&f.Report,
		&f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundForecast,
			fmt.Sprintf("no forecast stored for district %d", districtID), nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load latest forecast", err)
	}
	f.Origin = types.ForecastOrigin(origin)
	return &f, nil
}

// CountSince returns how many forecasts were stored for districtID at or
// after the given time. The sweeper uses it to skip districts already
// forecast in the current window.
func (r *ForecastRepository) CountSince(ctx context.Context, districtID int, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM district_forecasts WHERE district_id = $1 AND created_at >= $2`,
		districtID, since,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count forecasts", err)
	}
	return n, nil
}
