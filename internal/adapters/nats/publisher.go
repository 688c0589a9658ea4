package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vegwatch/vegwatch/internal/core/domain"
)

// Subjects used for scan events. Progress messages are fire-and-forget
// core NATS (no replay, matching the progress channel contract);
// lifecycle events go through JetStream so downstream consumers can
// catch up.
const (
	SubjectProgress  = "vegetation.scan.progress"
	SubjectCompleted = "vegetation.scan.completed"
	SubjectFailed    = "vegetation.scan.failed"
)

// Publisher implements ports.EventPublisher and ports.ProgressSink over NATS.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the scan event stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      "SCAN_EVENTS",
		Subjects:  []string{SubjectCompleted, SubjectFailed},
		Retention: nats.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist — try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// Emit forwards a progress message as a plain broadcast. Implements
// ports.ProgressSink; failures are ignored so a broker hiccup never
// stalls a scan.
func (p *Publisher) Emit(ctx context.Context, message string) {
	_ = p.conn.Publish(SubjectProgress, []byte(message))
}

func (p *Publisher) PublishScanCompleted(ctx context.Context, scan *domain.Scan) error {
	data, err := json.Marshal(scan)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectCompleted, data)
	return err
}

func (p *Publisher) PublishScanFailed(ctx context.Context, scanID, reason string) error {
	data, err := json.Marshal(map[string]string{"id": scanID, "reason": reason})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectFailed, data)
	return err
}

// Conn exposes the raw connection for subscribers (e.g. external relays).
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
