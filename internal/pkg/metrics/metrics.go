package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vegwatch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Scan metrics
	ScansStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "scan",
		Name:      "started_total",
		Help:      "Total vegetation scans started",
	})

	ScansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "scan",
		Name:      "finished_total",
		Help:      "Total vegetation scans finished, by terminal status",
	}, []string{"status"})

	TilesScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "scan",
		Name:      "tiles_scored_total",
		Help:      "Total tiles for which the provider returned a score",
	})

	TilesWithoutData = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "scan",
		Name:      "tiles_without_data_total",
		Help:      "Total tiles skipped because the provider returned no value",
	})

	// Imagery provider metrics
	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vegwatch",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Duration of imagery provider round-trips",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})

	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "provider",
		Name:      "errors_total",
		Help:      "Total imagery provider errors after retries",
	}, []string{"operation"})

	// WebSocket metrics
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vegwatch",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	ProgressDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "ws",
		Name:      "progress_dropped_total",
		Help:      "Progress messages dropped because a listener buffer was full",
	})

	// Cache metrics
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vegwatch",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
