package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vegwatch/vegwatch/internal/core/domain"
	"github.com/vegwatch/vegwatch/internal/core/ports"
	"github.com/vegwatch/vegwatch/internal/pkg/geospatial"
	"github.com/vegwatch/vegwatch/internal/pkg/logging"
	"github.com/vegwatch/vegwatch/internal/pkg/metrics"
)

const (
	// TileSizeM is the fixed tile edge used to split the requested area.
	TileSizeM = 500
	// ReduceScaleM is the sampling resolution of the mean reduction,
	// matching the provider's native pixel scale.
	ReduceScaleM = 30
	// ScanWindowYears is the trailing window: current year and the three before it.
	ScanWindowYears = 4

	// Sentinel-2 band names for the NDVI normalized difference.
	BandNIR = "B8"
	BandRed = "B4"
)

// ScanService runs vegetation scans: it decomposes an area into tiles,
// scores each tile per year through the imagery provider, and reduces
// the tile scores into one yearly NDVI average across the scan window.
type ScanService struct {
	provider ports.ImageryProvider
	store    ports.ImageStore
	scans    ports.ScanRepository
	cache    ports.CacheService
	events   ports.EventPublisher
	progress ports.ProgressSink

	now func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewScanService creates a new ScanService. store, scans, cache and
// events may be nil; the numeric scan result does not depend on them.
func NewScanService(
	provider ports.ImageryProvider,
	store ports.ImageStore,
	scans ports.ScanRepository,
	cache ports.CacheService,
	events ports.EventPublisher,
	progress ports.ProgressSink,
) *ScanService {
	return &ScanService{
		provider: provider,
		store:    store,
		scans:    scans,
		cache:    cache,
		events:   events,
		progress: progress,
		now:      time.Now,
		running:  make(map[string]context.CancelFunc),
	}
}

// Start validates the request, records the scan, and launches it in the
// background with its own cancellable context. The returned scan is in
// the running state; progress is observable on the progress channel.
func (s *ScanService) Start(ctx context.Context, lat, lon, areaM2 float64) (*domain.Scan, error) {
	center := domain.GeoPoint{Lat: lat, Lon: lon}
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if areaM2 <= 0 {
		return nil, domain.ErrInvalidArea
	}

	scan := &domain.Scan{
		Location:  center,
		AreaM2:    areaM2,
		Status:    domain.ScanStatusRunning,
		CreatedAt: s.now().UTC(),
	}
	if s.scans != nil {
		if err := s.scans.Create(ctx, scan); err != nil {
			return nil, fmt.Errorf("create scan: %w", err)
		}
	}

	// The scan outlives the HTTP request, so it gets a fresh context.
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[scan.ID] = cancel
	s.mu.Unlock()

	metrics.ScansStarted.Inc()
	s.emit(runCtx, "scan %s: requested for lat %.5f lon %.5f, area %.0f m2", scan.ID, lat, lon, areaM2)

	// The goroutine keeps writing to scan as years complete; the caller
	// gets a detached snapshot it can serialize safely.
	snapshot := *scan
	go s.run(runCtx, scan)

	return &snapshot, nil
}

// Cancel requests cooperative cancellation of a running scan.
func (s *ScanService) Cancel(id string) error {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return domain.ErrScanNotRunning
	}
	cancel()
	return nil
}

// Get returns a scan with its series and image paths. Terminal scans are
// served from cache when possible.
func (s *ScanService) Get(ctx context.Context, id string) (*domain.Scan, error) {
	cacheKey := "scans:id:" + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var scan domain.Scan
			if err := json.Unmarshal(data, &scan); err == nil {
				metrics.CacheHits.WithLabelValues("scan_get").Inc()
				return &scan, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("scan_get").Inc()
	}

	if s.scans == nil {
		return nil, domain.ErrScanNotFound
	}
	scan, err := s.scans.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Only terminal scans are cacheable; a running series is still growing.
	if s.cache != nil && scan.Status.Terminal() {
		if data, err := json.Marshal(scan); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 3600)
		}
	}
	return scan, nil
}

// List returns recent scans plus the total count.
func (s *ScanService) List(ctx context.Context, offset, limit int) ([]domain.Scan, int, error) {
	if s.scans == nil {
		return nil, 0, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.scans.List(ctx, offset, limit)
}

// run executes the scan to completion and records the terminal state.
func (s *ScanService) run(ctx context.Context, scan *domain.Scan) {
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.running[scan.ID]; ok {
			cancel()
			delete(s.running, scan.ID)
		}
		s.mu.Unlock()
	}()

	log := logging.ForScan(scan.ID)

	series, images, err := s.ScanYears(ctx, scan.ID, scan.Location, scan.AreaM2, s.now().Year(), ScanWindowYears)
	scan.Series = series
	scan.Images = images

	switch {
	case err == nil:
		s.finish(ctx, scan, domain.ScanStatusCompleted, "")
		s.emit(ctx, "scan %s: completed, %d years scored", scan.ID, len(series))
		if s.events != nil {
			if perr := s.events.PublishScanCompleted(context.Background(), scan); perr != nil {
				log.Warn("publish scan completed", "error", perr)
			}
		}

	case errors.Is(err, context.Canceled):
		s.finish(ctx, scan, domain.ScanStatusCanceled, "canceled by client")
		s.emit(ctx, "scan %s: canceled", scan.ID)

	default:
		log.Error("scan failed", "error", err)
		s.finish(ctx, scan, domain.ScanStatusFailed, err.Error())
		s.emit(ctx, "scan %s: failed: %v", scan.ID, err)
		if s.events != nil {
			if perr := s.events.PublishScanFailed(context.Background(), scan.ID, err.Error()); perr != nil {
				log.Warn("publish scan failed event", "error", perr)
			}
		}
	}
}

func (s *ScanService) finish(ctx context.Context, scan *domain.Scan, status domain.ScanStatus, errMsg string) {
	scan.Status = status
	scan.Error = errMsg
	now := s.now().UTC()
	scan.CompletedAt = &now
	metrics.ScansFinished.WithLabelValues(string(status)).Inc()

	if s.scans != nil {
		// Status updates must land even when the scan context is gone.
		if err := s.scans.SetStatus(context.Background(), scan.ID, status, errMsg); err != nil {
			logging.ForScan(scan.ID).Error("record scan status", "error", err)
		}
	}
	if s.cache != nil {
		_ = s.cache.Delete(context.Background(), "scans:id:"+scan.ID)
	}
}

// ScanYears computes one YearlyScore per year in the trailing window,
// oldest first, plus the stored composite image paths. An absent yearly
// average is valid output; a provider fault aborts with an error. The
// context cancels the scan between provider round-trips.
func (s *ScanService) ScanYears(ctx context.Context, scanID string, center domain.GeoPoint, areaM2 float64, currentYear, windowSize int) ([]domain.YearlyScore, []string, error) {
	region, err := BuildRegion(center, areaM2)
	if err != nil {
		return nil, nil, err
	}

	var (
		series []domain.YearlyScore
		images []string
	)

	for year := currentYear - (windowSize - 1); year <= currentYear; year++ {
		if err := ctx.Err(); err != nil {
			return series, images, err
		}

		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

		s.emit(ctx, "scan %s: fetching composite for lat %.5f lon %.5f, %s to %s",
			scanID, center.Lat, center.Lon, start.Format("2006-01-02"), end.Format("2006-01-02"))

		composite, err := s.provider.FetchComposite(ctx, region, start, end)
		if err != nil {
			return series, images, fmt.Errorf("fetch composite for %d: %w", year, err)
		}

		imagePath := s.saveComposite(ctx, scanID, year, composite)
		if imagePath != "" {
			images = append(images, imagePath)
		}

		index, err := s.provider.NormalizedDifference(ctx, composite, BandNIR, BandRed)
		if err != nil {
			return series, images, fmt.Errorf("compute ndvi for %d: %w", year, err)
		}

		tiles, err := BuildTileGrid(center, areaM2, TileSizeM)
		if err != nil {
			return series, images, err
		}
		widthM := geospatial.Haversine(region.MinLat, region.MinLon, region.MinLat, region.MaxLon)
		s.emit(ctx, "scan %s: year %d: area (~%.0f m across) split into %d tiles of %d m",
			scanID, year, widthM, len(tiles), TileSizeM)

		scores, err := s.ScoreTiles(ctx, scanID, year, index, tiles)
		if err != nil {
			return series, images, fmt.Errorf("score tiles for %d: %w", year, err)
		}

		avg := ReduceYear(scores)
		score := domain.YearlyScore{Year: year, AverageNDVI: avg}
		series = append(series, score)

		if avg != nil {
			s.emit(ctx, "scan %s: year %d done, average ndvi %.4f", scanID, year, *avg)
		} else {
			s.emit(ctx, "scan %s: year %d done, no usable tiles", scanID, year)
		}

		if s.scans != nil {
			if err := s.scans.AddYear(context.Background(), scanID, score, imagePath); err != nil {
				logging.ForScan(scanID).Error("record yearly score", "year", year, "error", err)
			}
		}
	}

	return series, images, nil
}

// saveComposite renders and stores the year's composite image. Failures
// are reported on the progress channel but never abort scoring; the
// numeric result does not depend on the visual artifact.
func (s *ScanService) saveComposite(ctx context.Context, scanID string, year int, composite domain.ImageRef) string {
	if s.store == nil {
		return ""
	}

	png, err := s.provider.RenderThumbnail(ctx, composite)
	if err != nil {
		s.emit(ctx, "scan %s: rendering composite for %d failed: %v (scoring continues)", scanID, year, err)
		return ""
	}
	path, err := s.store.SaveComposite(ctx, year, png)
	if err != nil {
		s.emit(ctx, "scan %s: storing composite for %d failed: %v (scoring continues)", scanID, year, err)
		return ""
	}
	s.emit(ctx, "scan %s: composite image saved: %s", scanID, path)
	return path
}

// ScoreTiles reduces the vegetation index over every tile in enumeration
// order. The result has one entry per tile; nil marks a tile the
// provider had no value for. Only provider faults return an error.
func (s *ScanService) ScoreTiles(ctx context.Context, scanID string, year int, index domain.ImageRef, tiles []domain.Tile) ([]*float64, error) {
	total := len(tiles)
	scores := make([]*float64, 0, total)

	for n, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return scores, err
		}

		s.emit(ctx, "scan %s: year %d: scoring tile %d of %d", scanID, year, n+1, total)

		value, err := s.provider.MeanOverRegion(ctx, index, tile.Region, ReduceScaleM)
		if err != nil {
			return scores, fmt.Errorf("tile %d of %d: %w", n+1, total, err)
		}

		scores = append(scores, value)
		if value != nil {
			metrics.TilesScored.Inc()
			s.emit(ctx, "scan %s: year %d: tile %d of %d scored %.4f", scanID, year, n+1, total, *value)
		} else {
			metrics.TilesWithoutData.Inc()
			s.emit(ctx, "scan %s: year %d: tile %d of %d has no data", scanID, year, n+1, total)
		}
	}

	return scores, nil
}

// ReduceYear averages the present tile scores. Absent tiles are excluded
// from the aggregate, not treated as zero; with no present score at all
// the yearly average is nil.
func ReduceYear(scores []*float64) *float64 {
	var sum float64
	var count int
	for _, v := range scores {
		if v == nil {
			continue
		}
		sum += *v
		count++
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}

func (s *ScanService) emit(ctx context.Context, format string, args ...any) {
	if s.progress == nil {
		return
	}
	s.progress.Emit(ctx, fmt.Sprintf(format, args...))
}
