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

	"github.com/gavelhq/gavel/internal/adapter/github"
	gvhttp "github.com/gavelhq/gavel/internal/adapter/http"
	"github.com/gavelhq/gavel/internal/adapter/litellm"
	gvnats "github.com/gavelhq/gavel/internal/adapter/nats"
	"github.com/gavelhq/gavel/internal/adapter/otel"
	"github.com/gavelhq/gavel/internal/adapter/postgres"
	"github.com/gavelhq/gavel/internal/adapter/ristretto"
	"github.com/gavelhq/gavel/internal/adapter/ws"
	"github.com/gavelhq/gavel/internal/agent"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/logger"
	"github.com/gavelhq/gavel/internal/middleware"
	"github.com/gavelhq/gavel/internal/resilience"
	"github.com/gavelhq/gavel/internal/router"
	"github.com/gavelhq/gavel/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"default_tier", cfg.AI.DefaultTier,
		"max_tier", cfg.AI.MaxTier,
	)

	ctx := context.Background()

	// --- Observability ---

	shutdownOtel, err := otel.Init(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	var metrics *otel.Metrics
	if cfg.Otel.Enabled {
		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := gvnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	tokenCache, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer tokenCache.Close()

	// --- External clients ---

	gh, err := github.NewClient(cfg.GitHub, tokenCache)
	if err != nil {
		return fmt.Errorf("github: %w", err)
	}
	gh.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	llm := litellm.NewClient(cfg.AI.ProxyURL, cfg.AI.MasterKey)
	modelRouter := router.New(llm, cfg.AI,
		resilience.NewBreakerSet(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	registry := agent.NewRegistry(
		agent.NewSecurity(modelRouter, cfg.Agents.Security),
		agent.NewPerformance(modelRouter, cfg.Agents.Performance),
		agent.NewArchitecture(modelRouter, cfg.Agents.Architecture),
	)

	intake := service.NewIntake(store, queue, hub)
	lifecycle := service.NewLifecycle(store, gh, hub)
	orchestrator := service.NewOrchestrator(lifecycle, registry, gh, *cfg, metrics)
	worker := service.NewWorker(orchestrator, queue)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	cancelSub, err := worker.Start(workerCtx)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	defer cancelSub()
	slog.Info("review worker subscribed")

	// --- HTTP ---

	handlers := gvhttp.NewHandlers(intake, store, queue)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(gvhttp.Logger)
	r.Use(gvhttp.SecurityHeaders)
	r.Use(gvhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Otel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	gvhttp.MountRoutes(r, handlers, hub, cfg.GitHub)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown: stop accepting HTTP first, then let in-flight
	// reviews drain off the queue before closing infrastructure.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}

	stopWorker()
	if err := queue.Drain(); err != nil {
		slog.Error("queue drain", "error", err)
	}
	return nil
}
