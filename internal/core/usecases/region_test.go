package usecases_test

import (
	"errors"
	"math"
	"testing"

	"github.com/vegwatch/vegwatch/internal/core/domain"
	"github.com/vegwatch/vegwatch/internal/core/usecases"
)

func TestBuildRegion_CenteredRectangle(t *testing.T) {
	center := domain.GeoPoint{Lat: 43.263, Lon: -2.935}
	areaM2 := 1_000_000.0 // 1 km² → side 1 km

	region, err := usecases.BuildRegion(center, areaM2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const side = 1.0 // sqrt(1e6)/1000
	wantMinLon := center.Lon - side/2
	wantMaxLat := center.Lat + side/2
	if math.Abs(region.MinLon-wantMinLon) > 1e-9 {
		t.Errorf("MinLon = %v, want %v", region.MinLon, wantMinLon)
	}
	if math.Abs(region.MaxLat-wantMaxLat) > 1e-9 {
		t.Errorf("MaxLat = %v, want %v", region.MaxLat, wantMaxLat)
	}
	if math.Abs((region.MaxLon-region.MinLon)-side) > 1e-9 {
		t.Errorf("lon span = %v, want %v", region.MaxLon-region.MinLon, side)
	}
}

func TestBuildRegion_InvalidArea(t *testing.T) {
	for _, area := range []float64{0, -1, -500000} {
		_, err := usecases.BuildRegion(domain.GeoPoint{}, area)
		if !errors.Is(err, domain.ErrInvalidArea) {
			t.Errorf("area %v: expected ErrInvalidArea, got %v", area, err)
		}
	}
}

func TestBuildTileGrid_Count(t *testing.T) {
	cases := []struct {
		areaM2 float64
		want   int // tiles per axis
	}{
		{500, 1},
		{501, 2},
		{1000, 2},
		{1200, 3},
		{2500, 5},
	}
	for _, tc := range cases {
		tiles, err := usecases.BuildTileGrid(domain.GeoPoint{Lat: 10, Lon: 20}, tc.areaM2, usecases.TileSizeM)
		if err != nil {
			t.Fatalf("area %v: unexpected error: %v", tc.areaM2, err)
		}
		if got, want := len(tiles), tc.want*tc.want; got != want {
			t.Errorf("area %v: got %d tiles, want %d", tc.areaM2, got, want)
		}
	}
}

func TestBuildTileGrid_EnumerationOrder(t *testing.T) {
	// 2 tiles per axis: ceil(1000/500) = 2
	tiles, err := usecases.BuildTileGrid(domain.GeoPoint{Lat: 0, Lon: 0}, 1000, usecases.TileSizeM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	if len(tiles) != len(want) {
		t.Fatalf("got %d tiles, want %d", len(tiles), len(want))
	}
	for n, tile := range tiles {
		if tile.Row != want[n][0] || tile.Col != want[n][1] {
			t.Errorf("tile %d: got (%d,%d), want (%d,%d)", n, tile.Row, tile.Col, want[n][0], want[n][1])
		}
	}
}

func TestBuildTileGrid_CornerOffsets(t *testing.T) {
	center := domain.GeoPoint{Lat: 40, Lon: -3}
	tiles, err := usecases.BuildTileGrid(center, 1000, usecases.TileSizeM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Tile (1,1): corners offset by 1× and 2× the tile size over 1000,
	// walking away from the center.
	tile := tiles[3]
	const step = 500.0 / 1000
	if math.Abs(tile.Region.MinLon-(center.Lon-step)) > 1e-9 {
		t.Errorf("MinLon = %v, want %v", tile.Region.MinLon, center.Lon-step)
	}
	if math.Abs(tile.Region.MaxLat-(center.Lat-2*step)) > 1e-9 {
		t.Errorf("MaxLat = %v, want %v", tile.Region.MaxLat, center.Lat-2*step)
	}
}

func TestBuildTileGrid_InvalidArea(t *testing.T) {
	_, err := usecases.BuildTileGrid(domain.GeoPoint{}, -5, usecases.TileSizeM)
	if !errors.Is(err, domain.ErrInvalidArea) {
		t.Errorf("expected ErrInvalidArea, got %v", err)
	}
}
