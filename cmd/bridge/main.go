package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/applepay"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/bridge"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/database"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/events"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/middleware"
	natscommon "github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/nats"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/everypay"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/metrics"
	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/payment"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"BRIDGE_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// Mock payments let the service run without a real payment sheet.
	MockPaymentsEnabled bool `envconfig:"MOCK_PAYMENTS_ENABLED" default:"true"`

	EveryPay everypay.Config
	Database database.Config
	NATS     natscommon.Config
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	// Payment sheet. The mock sheet stands in for the native capability;
	// its enabled state is toggled over the API as well.
	sheet := applepay.NewMockSheet()
	if cfg.MockPaymentsEnabled {
		if _, err := sheet.SetMockPaymentsEnabled(ctx, true); err != nil {
			logger.Warn("failed to enable mock payments", "error", err)
		}
	}

	client := everypay.NewClient(cfg.EveryPay, logger).
		WithRequestObserver(paymentMetrics.ObserveBackendRequest)

	orchestrator := payment.NewOrchestrator(client, sheet, logger).
		WithMetrics(paymentMetrics)

	// Attempt auditing is optional; it activates only when a database is
	// configured.
	var db *database.DB
	var store payment.AttemptStore
	if cfg.Database.URL != "" {
		if err := database.Migrate(cfg.Database.URL, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		var err error
		db, err = database.New(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pgStore := payment.NewPostgresStore(db.Pool())
		store = pgStore
		orchestrator.WithStore(pgStore)
	}

	// Event publishing is optional as well.
	bus := events.NewBus()
	var natsClient *natscommon.Client
	if cfg.NATS.Enabled {
		var err error
		natsClient, err = natscommon.New(ctx, cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		if _, err := natsClient.EnsureStream(ctx); err != nil {
			logger.Error("failed to ensure event stream", "error", err)
			os.Exit(1)
		}

		bus.Attach(natscommon.NewPublisher(natsClient, logger))
	}
	orchestrator.WithPublisher(bus)

	// Create handlers
	bridgeHandler := bridge.NewHandler(orchestrator, store, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		if natsClient != nil {
			if err := natsClient.HealthCheck(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Metrics
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// API routes
	r.Route("/api/v1/apple-pay", func(r chi.Router) {
		r.Mount("/", bridgeHandler.Routes())
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting apple pay bridge",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"mock_payments", cfg.MockPaymentsEnabled,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
