package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oejp/kraken-bridge/internal/config"
	"github.com/oejp/kraken-bridge/internal/handler"
	"github.com/oejp/kraken-bridge/internal/infra/observability"
	"github.com/oejp/kraken-bridge/internal/infra/resilience"
	"github.com/oejp/kraken-bridge/internal/kraken"
	"github.com/oejp/kraken-bridge/internal/sensor"
	"github.com/oejp/kraken-bridge/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("api_url", cfg.APIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("refresh_interval", cfg.RefreshInterval),
		zap.Duration("refresh_timeout", cfg.RefreshTimeout),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "kraken-bridge")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Upstream client ---
	client := kraken.NewClient(kraken.Config{
		Email:       cfg.Email,
		Password:    cfg.Password,
		EndpointURL: cfg.APIURL,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		Breaker:     resilience.NewCircuitBreaker("kraken-api"),
		Metrics:     metrics,
		Logger:      logger,
	})

	// --- Coordinator ---
	coord := service.NewCoordinator(client, metrics, logger, service.CoordinatorConfig{
		Interval: cfg.RefreshInterval,
		Timeout:  cfg.RefreshTimeout,
	})

	// Resolve the account up front: without it no refresh can ever succeed.
	setupCtx, setupCancel := context.WithTimeout(context.Background(), cfg.RefreshTimeout)
	err = coord.ResolveAccount(setupCtx)
	setupCancel()
	if err != nil {
		logger.Fatal("failed to resolve account", zap.Error(err))
	}

	// Sensor values as Prometheus gauges, recomputed per scrape.
	metrics.Registry.MustRegister(sensor.NewCollector(coord))

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go coord.Run(runCtx)

	// --- Router ---
	router := handler.NewRouter(coord, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	runCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
