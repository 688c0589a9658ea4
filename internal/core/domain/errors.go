package domain

import "errors"

var (
	// ErrInvalidArea is returned for a non-positive target area.
	// Rejected before any provider interaction.
	ErrInvalidArea = errors.New("area must be greater than zero square meters")

	// ErrProviderUnavailable means the imagery provider cannot be reached
	// or authenticated. It is fatal for the whole scan.
	ErrProviderUnavailable = errors.New("imagery provider unavailable")

	// ErrScanNotFound is returned when a scan ID is unknown.
	ErrScanNotFound = errors.New("scan not found")

	// ErrScanNotRunning is returned when canceling a scan that is not running.
	ErrScanNotRunning = errors.New("scan is not running")
)
