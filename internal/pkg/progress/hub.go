package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vegwatch/vegwatch/internal/core/ports"
	"github.com/vegwatch/vegwatch/internal/pkg/metrics"
)

const listenerBuffer = 64

// Listener receives broadcast progress messages. Messages arrive in
// emission order; delivery is best-effort and a full buffer drops the
// message rather than stalling the emitter.
type Listener struct {
	ch chan string
}

// C returns the receive channel. It is closed when the listener is
// removed from the hub.
func (l *Listener) C() <-chan string {
	return l.ch
}

// Hub is a broadcast registry for scan progress messages. Listeners may
// attach and detach concurrently while scans are emitting; a slow or
// gone listener never blocks or fails a scan.
type Hub struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[*Listener]struct{})}
}

// Subscribe registers a new listener.
func (h *Hub) Subscribe() *Listener {
	l := &Listener{ch: make(chan string, listenerBuffer)}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and closes its channel. Unsubscribing
// twice is a no-op.
func (h *Hub) Unsubscribe(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[l]; !ok {
		return
	}
	delete(h.listeners, l)
	close(l.ch)
}

// Count returns the number of attached listeners.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Emit broadcasts a message to every listener without blocking.
// Implements ports.ProgressSink.
func (h *Hub) Emit(ctx context.Context, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for l := range h.listeners {
		select {
		case l.ch <- message:
		default:
			metrics.ProgressDropped.Inc()
		}
	}
}

// LogSink mirrors every progress message to the structured log, the way
// a server operator follows a scan without a WebSocket attached.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, message string) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, message)
}

// Fanout forwards each message to every wrapped sink in order.
type Fanout []ports.ProgressSink

func (f Fanout) Emit(ctx context.Context, message string) {
	for _, s := range f {
		s.Emit(ctx, message)
	}
}
