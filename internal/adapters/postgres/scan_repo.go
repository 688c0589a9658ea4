package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/vegwatch/vegwatch/internal/core/domain"
)

// ScanRepo implements ports.ScanRepository.
type ScanRepo struct {
	db *DB
}

func NewScanRepo(db *DB) *ScanRepo {
	return &ScanRepo{db: db}
}

func (r *ScanRepo) Create(ctx context.Context, scan *domain.Scan) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO scans (lat, lon, area_m2, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, scan.Location.Lat, scan.Location.Lon, scan.AreaM2, scan.Status).
		Scan(&scan.ID, &scan.CreatedAt)
}

func (r *ScanRepo) Get(ctx context.Context, id string) (*domain.Scan, error) {
	s := &domain.Scan{}
	var errMsg sql.NullString
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, lat, lon, area_m2, status, error, created_at, completed_at
		FROM scans WHERE id = $1
	`, id).Scan(&s.ID, &s.Location.Lat, &s.Location.Lon, &s.AreaM2,
		&s.Status, &errMsg, &s.CreatedAt, &s.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScanNotFound
		}
		return nil, err
	}
	s.Error = errMsg.String

	rows, err := r.db.Pool.Query(ctx, `
		SELECT year, average_ndvi, COALESCE(image_path, '')
		FROM scan_years WHERE scan_id = $1 ORDER BY year
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ys domain.YearlyScore
		var imagePath string
		if err := rows.Scan(&ys.Year, &ys.AverageNDVI, &imagePath); err != nil {
			return nil, err
		}
		s.Series = append(s.Series, ys)
		if imagePath != "" {
			s.Images = append(s.Images, imagePath)
		}
	}
	return s, rows.Err()
}

func (r *ScanRepo) List(ctx context.Context, offset, limit int) ([]domain.Scan, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM scans`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, lat, lon, area_m2, status, COALESCE(error, ''), created_at, completed_at
		FROM scans ORDER BY created_at DESC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var scans []domain.Scan
	for rows.Next() {
		var s domain.Scan
		if err := rows.Scan(&s.ID, &s.Location.Lat, &s.Location.Lon, &s.AreaM2,
			&s.Status, &s.Error, &s.CreatedAt, &s.CompletedAt); err != nil {
			return nil, 0, err
		}
		scans = append(scans, s)
	}
	return scans, total, rows.Err()
}

func (r *ScanRepo) AddYear(ctx context.Context, scanID string, score domain.YearlyScore, imagePath string) error {
	// A rescan of the same year replaces its row; the composite image on
	// disk is overwritten the same way.
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO scan_years (scan_id, year, average_ndvi, image_path)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (scan_id, year)
		DO UPDATE SET average_ndvi = EXCLUDED.average_ndvi, image_path = EXCLUDED.image_path
	`, scanID, score.Year, score.AverageNDVI, imagePath)
	return err
}

func (r *ScanRepo) SetStatus(ctx context.Context, id string, status domain.ScanStatus, errMsg string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE scans
		SET status = $2,
		    error = NULLIF($3, ''),
		    completed_at = CASE WHEN $2 IN ('completed', 'failed', 'canceled') THEN now() ELSE completed_at END
		WHERE id = $1
	`, id, status, errMsg)
	return err
}
