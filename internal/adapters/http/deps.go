package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/vegwatch/vegwatch/internal/core/usecases"
	"github.com/vegwatch/vegwatch/internal/pkg/progress"
)

// Pinger is the readiness contract for backing services.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds everything the HTTP handlers need.
type Dependencies struct {
	Scans    *usecases.ScanService
	Progress *progress.Hub
	NATS     *nats.Conn
	DB       Pinger
	Cache    Pinger
}
