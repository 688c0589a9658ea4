package domain

import (
	"time"
)

// ScanStatus is the lifecycle state of a vegetation scan.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCanceled  ScanStatus = "canceled"
)

// Terminal reports whether the status is a final state.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusCanceled
}

// ImageRef is an opaque handle to an image held by the imagery provider.
// It is only meaningful to the provider that issued it.
type ImageRef string

// YearlyScore is the aggregated vegetation index for one scanned year.
// AverageNDVI is nil when no tile in that year produced a usable value;
// that is valid domain output, not an error.
type YearlyScore struct {
	Year        int      `json:"year"`
	AverageNDVI *float64 `json:"average_ndvi"`
}

// Scan is one vegetation-trend request over a geographic area.
type Scan struct {
	ID          string        `json:"id"`
	Location    GeoPoint      `json:"location"`
	AreaM2      float64       `json:"area_m2"`
	Status      ScanStatus    `json:"status"`
	Series      []YearlyScore `json:"series,omitempty"` // year ascending
	Images      []string      `json:"images,omitempty"` // rendered composite paths, year ascending
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}
