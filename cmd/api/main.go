package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"
	"github.com/spf13/afero"

	"github.com/vegwatch/vegwatch/internal/adapters/earthengine"
	"github.com/vegwatch/vegwatch/internal/adapters/http"
	"github.com/vegwatch/vegwatch/internal/adapters/imagestore"
	natsadapter "github.com/vegwatch/vegwatch/internal/adapters/nats"
	"github.com/vegwatch/vegwatch/internal/adapters/postgres"
	"github.com/vegwatch/vegwatch/internal/adapters/valkey"
	"github.com/vegwatch/vegwatch/internal/core/ports"
	"github.com/vegwatch/vegwatch/internal/core/usecases"
	"github.com/vegwatch/vegwatch/internal/pkg/config"
	"github.com/vegwatch/vegwatch/internal/pkg/logging"
	"github.com/vegwatch/vegwatch/internal/pkg/progress"
	"github.com/vegwatch/vegwatch/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("vegwatch-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	// NATS (optional: scans broadcast in-process even without it)
	var natsConn *nats.Conn
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
		pub = nil
	} else {
		defer pub.Close()
		natsConn = pub.Conn()
	}

	// Imagery provider and composite store
	provider := earthengine.New(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		time.Duration(cfg.Provider.TimeoutSeconds)*time.Second,
	)
	store, err := imagestore.New(afero.NewOsFs(), cfg.Imagery.Dir)
	if err != nil {
		log.Fatalf("image store: %v", err)
	}

	// Progress fan-out: in-process hub for WebSocket clients, slog mirror,
	// and NATS for external consumers when available.
	hub := progress.NewHub()
	sinks := progress.Fanout{hub, progress.LogSink{}}
	if pub != nil {
		sinks = append(sinks, pub)
	}

	scanRepo := postgres.NewScanRepo(db)

	var events ports.EventPublisher
	var cacheSvc ports.CacheService
	if pub != nil {
		events = pub
	}
	if cache != nil {
		cacheSvc = cache
	}
	scanSvc := usecases.NewScanService(provider, store, scanRepo, cacheSvc, events, sinks)

	deps := &http.Dependencies{
		Scans:    scanSvc,
		Progress: hub,
		NATS:     natsConn,
		DB:       db,
	}
	if cache != nil {
		deps.Cache = cache
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "VegWatch API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps, cfg.Imagery.Dir)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
