package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/vegwatch/vegwatch/internal/pkg/metrics"
	"github.com/vegwatch/vegwatch/internal/pkg/progress"
)

// WebSocketHandler upgrades to WebSocket and relays the progress
// broadcast to the client. Every connected client sees every scan's
// messages, in emission order, with no replay for late subscribers.
// Delivery is best-effort: a client that stops reading is dropped
// without affecting running scans or other listeners.
func WebSocketHandler(hub *progress.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		listener := hub.Subscribe()
		defer hub.Unsubscribe(listener)

		// The read loop exists only to notice the client going away;
		// clients have nothing to say on this channel.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-listener.C():
				if !ok {
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					slog.Info("ws client disconnected", "remote", remoteAddr)
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-done:
				slog.Info("ws client disconnected", "remote", remoteAddr)
				return
			}
		}
	}
}
