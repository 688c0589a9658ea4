package ports

import (
	"context"

	"github.com/vegwatch/vegwatch/internal/core/domain"
)

// ScanRepository persists scans and their per-year results.
type ScanRepository interface {
	// Create inserts a new scan and fills in its ID and CreatedAt.
	Create(ctx context.Context, scan *domain.Scan) error

	Get(ctx context.Context, id string) (*domain.Scan, error)

	// List returns scans ordered most-recent first, plus the total count.
	List(ctx context.Context, offset, limit int) ([]domain.Scan, int, error)

	// AddYear records one yearly score and the path of its rendered
	// composite (empty when persistence of the image failed).
	AddYear(ctx context.Context, scanID string, score domain.YearlyScore, imagePath string) error

	// SetStatus transitions a scan; terminal states also set CompletedAt.
	SetStatus(ctx context.Context, id string, status domain.ScanStatus, errMsg string) error
}
