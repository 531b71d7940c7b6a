package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/dataset/duckdb"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/handlers"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/metrics"
	"github.com/ekaya-inc/ekaya-insights/pkg/middleware"
	"github.com/ekaya-inc/ekaya-insights/pkg/routing"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	policy := cfg.RoutingPolicy()
	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("routing_enabled", policy.Enabled),
		zap.String("uploads_dir", cfg.Sessions.UploadsDir),
		zap.Int("session_ttl_hours", cfg.Sessions.TTLHours))

	backends, err := llm.BuildBackendRegistry(cfg.ProviderConfig(), policy.BackendNames(), logger)
	if err != nil {
		logger.Fatal("Failed to configure generation backends", zap.Error(err))
	}
	logger.Info("Generation backends registered", zap.Strings("backends", backends.Names()))
	breakers := llm.NewCircuitBreakers(cfg.BreakerConfig())

	templates, err := cfg.Templates()
	if err != nil {
		logger.Fatal("Failed to load templates", zap.Error(err))
	}
	router := routing.NewRouter(policy, routing.NewTemplateMatcher(templates), logger)
	generator := services.NewSQLGenerator(backends, breakers, cfg.GeneratorConfig(), logger)
	auditor := audit.NewSecurityAuditor(logger)
	pipeline := services.NewQueryPipeline(router, generator, auditor, logger)

	engine := duckdb.NewEngine(cfg.Query.MaxRows, logger)
	sessionService, err := services.NewSessionService(cfg.SessionConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create session service", zap.Error(err))
	}
	queryService := services.NewQueryService(sessionService, engine, pipeline, auditor, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, engine, logger).RegisterRoutes(mux)
	handlers.NewSessionsHandler(queryService, sessionService.MaxUploadBytes(), logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(queryService, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.CORS(cfg.CORS.Origins)(
		middleware.RequestLogger(logger)(
			metrics.Middleware(mux)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Expired uploads are reaped until shutdown
	sessionService.RunReaper(ctx, cfg.CleanupInterval())

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting ekaya-insights",
			zap.String("addr", server.Addr),
			zap.Bool("tls", cfg.IsTLS()))

		var err error
		if cfg.IsTLS() {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		_ = server.Close()
		os.Exit(1)
	}
}

// newLogger builds a development logger for local runs and a JSON production
// logger elsewhere, both at the configured level.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logConfig := zap.NewProductionConfig()
	if cfg.Env == "local" {
		logConfig = zap.NewDevelopmentConfig()
	}
	logConfig.Level = level
	return logConfig.Build()
}
