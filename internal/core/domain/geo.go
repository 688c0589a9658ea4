package domain

import "fmt"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate is within WGS 84 bounds.
func (p GeoPoint) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Lon)
	}
	return nil
}

// Region is an axis-aligned rectangular geometry in degrees, ordered
// the way the imagery provider expects: [minLon, minLat, maxLon, maxLat].
type Region struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Coords returns the region as a flat coordinate slice.
func (r Region) Coords() []float64 {
	return []float64{r.MinLon, r.MinLat, r.MaxLon, r.MaxLat}
}

// Tile is one fixed-size square sub-region of a scanned area,
// scored independently. Row/Col follow the grid enumeration order.
type Tile struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Region Region `json:"region"`
}
