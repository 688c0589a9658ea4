package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/vegwatch/vegwatch/internal/adapters/http"
	"github.com/vegwatch/vegwatch/internal/core/domain"
	"github.com/vegwatch/vegwatch/internal/core/usecases"
	"github.com/vegwatch/vegwatch/internal/pkg/progress"
)

// ---- Mocks ----

type mockProvider struct {
	meanFn func(ctx context.Context, img domain.ImageRef, region domain.Region, scaleM float64) (*float64, error)
}

func (m *mockProvider) FetchComposite(ctx context.Context, region domain.Region, start, end time.Time) (domain.ImageRef, error) {
	return domain.ImageRef(fmt.Sprintf("composite-%d", start.Year())), nil
}

func (m *mockProvider) NormalizedDifference(ctx context.Context, img domain.ImageRef, bandA, bandB string) (domain.ImageRef, error) {
	return "ndvi-" + img, nil
}

func (m *mockProvider) MeanOverRegion(ctx context.Context, img domain.ImageRef, region domain.Region, scaleM float64) (*float64, error) {
	if m.meanFn != nil {
		return m.meanFn(ctx, img, region, scaleM)
	}
	v := 0.5
	return &v, nil
}

func (m *mockProvider) RenderThumbnail(ctx context.Context, img domain.ImageRef) ([]byte, error) {
	return []byte("png"), nil
}

type mockStore struct{}

func (m *mockStore) SaveComposite(ctx context.Context, year int, png []byte) (string, error) {
	return fmt.Sprintf("static/images/satellite_%d.png", year), nil
}

type mockScanRepo struct {
	mu    sync.Mutex
	scans map[string]*domain.Scan
	next  int
}

func newMockScanRepo() *mockScanRepo {
	return &mockScanRepo{scans: make(map[string]*domain.Scan)}
}

func (m *mockScanRepo) Create(ctx context.Context, scan *domain.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	scan.ID = fmt.Sprintf("scan-%d", m.next)
	scan.CreatedAt = time.Now()
	cp := *scan
	m.scans[scan.ID] = &cp
	return nil
}

func (m *mockScanRepo) Get(ctx context.Context, id string) (*domain.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return nil, domain.ErrScanNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockScanRepo) List(ctx context.Context, offset, limit int) ([]domain.Scan, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Scan
	for i := m.next; i >= 1; i-- {
		if s, ok := m.scans[fmt.Sprintf("scan-%d", i)]; ok {
			all = append(all, *s)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockScanRepo) AddYear(ctx context.Context, scanID string, score domain.YearlyScore, imagePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scans[scanID]; ok {
		s.Series = append(s.Series, score)
		if imagePath != "" {
			s.Images = append(s.Images, imagePath)
		}
	}
	return nil
}

func (m *mockScanRepo) SetStatus(ctx context.Context, id string, status domain.ScanStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scans[id]; ok {
		s.Status = status
		s.Error = errMsg
	}
	return nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

// ---- Test helpers ----

func setupApp(t *testing.T, repo *mockScanRepo, provider *mockProvider) *fiber.App {
	t.Helper()
	svc := usecases.NewScanService(provider, &mockStore{}, repo, nil, nil, nil)
	deps := &handler.Dependencies{
		Scans:    svc,
		Progress: progress.NewHub(),
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps, t.TempDir())
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *json.Decoder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != 202 {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body)
}

// ---- Scan handler tests ----

func TestStartScan_Accepted(t *testing.T) {
	repo := newMockScanRepo()
	app := setupApp(t, repo, &mockProvider{})

	dec := postJSON(t, app, "/v1/scans", map[string]float64{
		"lat": 27.5, "lon": 83.4, "area_m2": 1000000,
	})

	var scan domain.Scan
	if err := dec.Decode(&scan); err != nil {
		t.Fatal(err)
	}
	if scan.ID == "" {
		t.Error("expected scan id to be assigned")
	}
	if scan.Status != domain.ScanStatusRunning {
		t.Errorf("expected running status, got %q", scan.Status)
	}
}

func TestStartScan_InvalidArea(t *testing.T) {
	repo := newMockScanRepo()
	app := setupApp(t, repo, &mockProvider{})

	b, _ := json.Marshal(map[string]float64{"lat": 27.5, "lon": 83.4, "area_m2": 0})
	req := httptest.NewRequest("POST", "/v1/scans", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(repo.scans) != 0 {
		t.Error("invalid scan must not be persisted")
	}
}

func TestStartScan_InvalidCoordinates(t *testing.T) {
	repo := newMockScanRepo()
	app := setupApp(t, repo, &mockProvider{})

	for _, body := range []map[string]float64{
		{"lat": 95, "lon": 0, "area_m2": 1000},
		{"lat": 0, "lon": 200, "area_m2": 1000},
	} {
		b, _ := json.Marshal(body)
		req := httptest.NewRequest("POST", "/v1/scans", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 400 {
			t.Errorf("body %v: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestStartScan_MalformedBody(t *testing.T) {
	app := setupApp(t, newMockScanRepo(), &mockProvider{})

	req := httptest.NewRequest("POST", "/v1/scans", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetScan_NotFound(t *testing.T) {
	app := setupApp(t, newMockScanRepo(), &mockProvider{})

	req := httptest.NewRequest("GET", "/v1/scans/nope", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetScan_CompletedScanHasSeries(t *testing.T) {
	repo := newMockScanRepo()
	app := setupApp(t, repo, &mockProvider{})

	var started domain.Scan
	dec := postJSON(t, app, "/v1/scans", map[string]float64{
		"lat": 27.5, "lon": 83.4, "area_m2": 500,
	})
	if err := dec.Decode(&started); err != nil {
		t.Fatal(err)
	}

	// The scan runs in the background; poll until it finishes.
	deadline := time.Now().Add(5 * time.Second)
	var scan domain.Scan
	for {
		req := httptest.NewRequest("GET", "/v1/scans/"+started.ID, nil)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&scan); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if scan.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan did not finish, status %q", scan.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if scan.Status != domain.ScanStatusCompleted {
		t.Fatalf("expected completed, got %q (error %q)", scan.Status, scan.Error)
	}
	if len(scan.Series) != usecases.ScanWindowYears {
		t.Errorf("expected %d yearly scores, got %d", usecases.ScanWindowYears, len(scan.Series))
	}
	for _, ys := range scan.Series {
		if ys.AverageNDVI == nil || *ys.AverageNDVI != 0.5 {
			t.Errorf("year %d: expected average 0.5, got %v", ys.Year, ys.AverageNDVI)
		}
	}
}

func TestListScans_Pagination(t *testing.T) {
	repo := newMockScanRepo()
	app := setupApp(t, repo, &mockProvider{})

	for i := 0; i < 5; i++ {
		postJSON(t, app, "/v1/scans", map[string]float64{
			"lat": 27.5, "lon": 83.4, "area_m2": 500,
		})
	}

	req := httptest.NewRequest("GET", "/v1/scans?offset=2&limit=2", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Scan `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 5 {
		t.Errorf("expected total 5, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 scans in page, got %d", len(result.Data))
	}
	if result.Pagination.Offset != 2 {
		t.Errorf("expected offset 2, got %d", result.Pagination.Offset)
	}
	if resp.Header.Get("Link") == "" {
		t.Error("expected Link pagination headers")
	}
}

func TestCancelScan_NotRunning(t *testing.T) {
	app := setupApp(t, newMockScanRepo(), &mockProvider{})

	req := httptest.NewRequest("DELETE", "/v1/scans/nope", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 409 {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCancelScan_Running(t *testing.T) {
	repo := newMockScanRepo()
	release := make(chan struct{})
	var once sync.Once
	provider := &mockProvider{
		meanFn: func(ctx context.Context, img domain.ImageRef, region domain.Region, scaleM float64) (*float64, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			v := 0.5
			return &v, nil
		},
	}
	t.Cleanup(func() { once.Do(func() { close(release) }) })

	app := setupApp(t, repo, provider)

	var started domain.Scan
	dec := postJSON(t, app, "/v1/scans", map[string]float64{
		"lat": 27.5, "lon": 83.4, "area_m2": 500,
	})
	if err := dec.Decode(&started); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("DELETE", "/v1/scans/"+started.ID, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		repo.mu.Lock()
		status := repo.scans[started.ID].Status
		repo.mu.Unlock()
		if status == domain.ScanStatusCanceled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected canceled, got %q", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	app := setupApp(t, newMockScanRepo(), &mockProvider{})

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestReady_NoDatabase(t *testing.T) {
	app := setupApp(t, newMockScanRepo(), &mockProvider{})

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503 without a database, got %d", resp.StatusCode)
	}
}

func TestReady_CacheFailureIsNotFatal(t *testing.T) {
	svc := usecases.NewScanService(&mockProvider{}, &mockStore{}, newMockScanRepo(), nil, nil, nil)
	deps := &handler.Dependencies{
		Scans:    svc,
		Progress: progress.NewHub(),
		DB:       &mockPinger{},
		Cache:    &mockPinger{err: errors.New("connection refused")},
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps, t.TempDir())

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("an unreachable cache must not fail readiness, got %d", resp.StatusCode)
	}

	var result struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Checks["database"] != "ok" {
		t.Errorf("expected database ok, got %q", result.Checks["database"])
	}
	if !strings.Contains(result.Checks["cache"], "connection refused") {
		t.Errorf("cache failure should still be reported, got %q", result.Checks["cache"])
	}
}
