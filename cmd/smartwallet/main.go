// SmartWallet - Picks the best card in your wallet for every purchase.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/smartwallet/internal/api"
	"github.com/opensource-finance/smartwallet/internal/bus"
	"github.com/opensource-finance/smartwallet/internal/cache"
	"github.com/opensource-finance/smartwallet/internal/catalog"
	"github.com/opensource-finance/smartwallet/internal/config"
	"github.com/opensource-finance/smartwallet/internal/domain"
	"github.com/opensource-finance/smartwallet/internal/metrics"
	"github.com/opensource-finance/smartwallet/internal/recommend"
	"github.com/opensource-finance/smartwallet/internal/repository"
	"github.com/opensource-finance/smartwallet/internal/rules"
	"github.com/opensource-finance/smartwallet/internal/scheduler"
	"github.com/opensource-finance/smartwallet/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting smartwallet",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(ctx, cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var metricsMgr *metrics.Manager
	if cfg.Metrics.Enabled {
		metricsMgr = metrics.NewManager(metrics.WithNamespace(cfg.Metrics.Namespace))
		slog.Info("metrics initialized", "namespace", cfg.Metrics.Namespace)
	}

	if cfg.Tracing.Enabled {
		slog.Info("tracing enabled; spans use the global OpenTelemetry provider",
			"service_name", cfg.Tracing.ServiceName,
		)
	}

	// Initialize advisory rule engine
	engine, err := rules.NewEngine(cfg.Recommend.AdvisoryWorkers)
	if err != nil {
		slog.Error("failed to initialize advisory engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	svc, err := recommend.NewService(recommend.Options{
		Repository: repo,
		Catalog:    catalog.New(repo, cfg.Recommend.CatalogTTL),
		Cache:      cacheImpl,
		Bus:        busImpl,
		Advisories: engine,
		Metrics:    metricsMgr,
		MemoTTL:    cfg.Recommend.MemoTTL,
		History:    cfg.Recommend.History,
	})
	if err != nil {
		slog.Error("failed to initialize recommendation service", "error", err)
		os.Exit(1)
	}

	// Advisory rules live in the repository; start empty if they cannot be read
	if count, err := svc.ReloadAdvisories(ctx); err != nil {
		slog.Warn("failed to load advisory rules", "error", err)
	} else {
		slog.Info("advisory engine initialized", "rules_count", count)
	}

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, svc)
		workerCfg := worker.Config{
			Concurrency: cfg.Worker.Concurrency,
			QueueSize:   cfg.Worker.QueueSize,
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	// Schedule history retention
	var retention *scheduler.Scheduler
	if cfg.Retention.Schedule != "" && cfg.Retention.MaxAge > 0 {
		retention = scheduler.NewScheduler(ctx, repo, cfg.Retention.MaxAge, metricsMgr)
		if err := retention.RegisterRetention(cfg.Retention.Schedule); err != nil {
			slog.Error("failed to schedule retention", "error", err)
			retention = nil
		} else {
			retention.Start()
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Service:    svc,
		Repository: repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Metrics:    metricsMgr,
		Version:    Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("smartwallet is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if retention != nil {
		retention.Stop()
	}

	// Stop async worker before the bus closes
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("smartwallet shutdown complete")
}

// newLogger builds the process logger from the logging settings.
func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SmartWallet")
	fmt.Println("  The right card for every purchase.")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /api/cards                  - List cards")
	fmt.Println("    POST /api/cards                  - Add a card")
	fmt.Println("    GET  /api/rules                  - Get scoring rules")
	fmt.Println("    PUT  /api/rules                  - Replace scoring rules")
	fmt.Println("    GET  /api/apps                   - List merchant apps")
	fmt.Println("    PUT  /api/apps/{id}              - Map a merchant app to a category")
	fmt.Println("    POST /api/recommendation         - Recommend a card")
	fmt.Println("    POST /api/recommendations/async  - Queue a recommendation")
	fmt.Println("    GET  /api/recommendations/{id}   - Get a recommendation record")
	fmt.Println("    GET  /api/advisories             - List advisory rules")
	fmt.Println("    POST /api/advisories             - Create an advisory rule")
	fmt.Println("    POST /api/advisories/reload      - Hot-reload advisory rules")
	fmt.Println("    GET  /api/health                 - Health check")
	if cfg.Metrics.Enabled {
		fmt.Println("    GET  /metrics                    - Prometheus metrics")
	}
	fmt.Println()
}
