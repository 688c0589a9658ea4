package ports

import (
	"context"
	"time"

	"github.com/vegwatch/vegwatch/internal/core/domain"
)

// ImageryProvider is the contract the core requires from the remote
// imagery/analytics backend. A nil score from MeanOverRegion means the
// value is absent (outside coverage, fully cloud-masked); only transport
// and authentication failures are reported as errors.
type ImageryProvider interface {
	// FetchComposite returns the least-cloudy composite clipped to region
	// for the half-open interval [start, end].
	FetchComposite(ctx context.Context, region domain.Region, start, end time.Time) (domain.ImageRef, error)

	// NormalizedDifference computes (a-b)/(a+b) per pixel for two named bands.
	NormalizedDifference(ctx context.Context, img domain.ImageRef, bandA, bandB string) (domain.ImageRef, error)

	// MeanOverRegion reduces the image to its spatial mean over region,
	// sampled at scaleM meters per pixel. Returns nil when no value exists.
	MeanOverRegion(ctx context.Context, img domain.ImageRef, region domain.Region, scaleM float64) (*float64, error)

	// RenderThumbnail renders a true-color PNG preview of the image.
	RenderThumbnail(ctx context.Context, img domain.ImageRef) ([]byte, error)
}

// ImageStore persists rendered composite images, one per scanned year.
// The stored name is deterministic per year and overwritten on re-runs.
type ImageStore interface {
	SaveComposite(ctx context.Context, year int, png []byte) (string, error)
}

// ProgressSink receives free-form human-readable progress messages.
// Emit must never block scan progress on a slow or absent consumer.
type ProgressSink interface {
	Emit(ctx context.Context, message string)
}

// EventPublisher publishes scan lifecycle events to a message broker.
type EventPublisher interface {
	PublishScanCompleted(ctx context.Context, scan *domain.Scan) error
	PublishScanFailed(ctx context.Context, scanID, reason string) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
