package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"krishisat/internal/types"
)

// Scan history limits.
const (
	DefaultScanLimit = 20
	MaxScanLimit     = 100
)

// ScanRepository stores disease predictions in the disease_scans table.
//
//	CREATE TABLE disease_scans (
//	    id             UUID PRIMARY KEY,
//	    crop_type      TEXT NOT NULL DEFAULT 'unknown',
//	    field_location TEXT NOT NULL DEFAULT '',
//	    disease        TEXT NOT NULL,
//	    confidence     DOUBLE PRECISION NOT NULL,
//	    risk_level     TEXT NOT NULL,
//	    risk_score     DOUBLE PRECISION NOT NULL,
//	    recommendation TEXT NOT NULL,
//	    top5           JSONB NOT NULL,
//	    scanned_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX disease_scans_recent ON disease_scans (scanned_at DESC);
type ScanRepository struct {
	db DBTX
}

// NewScanRepository creates a ScanRepository.
func NewScanRepository(db DBTX) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `id, crop_type, field_location, disease, confidence, risk_level,
	risk_score, recommendation, top5, scanned_at`

// Create inserts s, assigning a UUID when s.ID is empty. ScannedAt is set
// from the database clock.
func (r *ScanRepository) Create(ctx context.Context, s *types.StoredScan) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if len(s.Top5) == 0 {
		s.Top5 = []byte("[]")
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO disease_scans (
			id, crop_type, field_location, disease, confidence, risk_level,
			risk_score, recommendation, top5
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING scanned_at`,
		s.ID,
		s.CropType,
		s.FieldLocation,
		s.Disease,
		s.Confidence,
		s.RiskLevel,
		s.RiskScore,
		s.Recommendation,
		s.Top5,
	).Scan(&s.ScannedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store scan", err)
	}
	return nil
}

// ListRecent returns up to limit scans, newest first. limit is clamped to
// [1, MaxScanLimit]; zero or negative means DefaultScanLimit.
func (r *ScanRepository) ListRecent(ctx context.Context, limit int) ([]types.StoredScan, error) {
	switch {
	case limit <= 0:
		limit = DefaultScanLimit
	case limit > MaxScanLimit:
		limit = MaxScanLimit
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+scanColumns+`
		 FROM disease_scans
		 ORDER BY scanned_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list scans", err)
	}
	defer rows.Close()

	scans := make([]types.StoredScan, 0, limit)
	for rows.Next() {
		s, scanErr := scanStoredScan(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan disease scan row", scanErr)
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating scan rows", err)
	}
	return scans, nil
}

// Get returns one scan. Returns ErrCodeNotFoundScan when id is unknown.
func (r *ScanRepository) Get(ctx context.Context, id string) (*types.StoredScan, error) {
	s, err := scanStoredScan(r.db.QueryRow(ctx,
		`SELECT `+scanColumns+` FROM disease_scans WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundScan, fmt.Sprintf("scan %s not found", id), nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load scan", err)
	}
	return &s, nil
}

func scanStoredScan(row pgx.Row) (types.StoredScan, error) {
	var s types.StoredScan
	err := row.Scan(
		&s.ID,
		&s.CropType,
		&s.FieldLocation,
		&s.Disease,
		&s.Confidence,
		&s.RiskLevel,
		&s.RiskScore,
		&s.Recommendation,
		&s.Top5,
		&s.ScannedAt,
	)
	return s, err
}
