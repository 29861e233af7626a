// Contas - bills, installments and monthly balance dashboard backend.

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

	"github.com/opensource-finance/contas/internal/api"
	"github.com/opensource-finance/contas/internal/bus"
	"github.com/opensource-finance/contas/internal/cache"
	"github.com/opensource-finance/contas/internal/domain"
	"github.com/opensource-finance/contas/internal/insight"
	"github.com/opensource-finance/contas/internal/metrics"
	"github.com/opensource-finance/contas/internal/repository"
	"github.com/opensource-finance/contas/internal/rules"
	"github.com/opensource-finance/contas/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := domain.LoadConfig(os.Getenv("CONTAS_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting contas",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"worker", cfg.Worker.Enabled,
	)

	// Without tracing the global provider is replaced by a no-op one; with it
	// the global provider stays in place for an SDK or auto-instrumentation.
	if !cfg.Tracing.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
	}
	slog.Info("tracing configured", "enabled", cfg.Tracing.Enabled, "service", cfg.Tracing.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load insight rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	processor := insight.NewProcessor()
	m := metrics.New()

	var refresher *worker.Worker
	if cfg.Worker.Enabled {
		refresher = worker.NewWorker(worker.Deps{
			Bus:       busImpl,
			Repo:      repo,
			Cache:     cacheImpl,
			Engine:    engine,
			Processor: processor,
			Metrics:   m,
		}, worker.Config{
			SummaryMonths:   cfg.Worker.SummaryMonths,
			SummaryTTL:      cfg.Cache.SummaryTTL,
			RefreshSchedule: cfg.Worker.RefreshSchedule,
		})

		if err := refresher.Start(); err != nil {
			slog.Error("failed to start worker", "error", err)
			os.Exit(1)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		Engine:        engine,
		Processor:     processor,
		Metrics:       m,
		Version:       Version,
		SummaryMonths: cfg.Worker.SummaryMonths,
		SummaryTTL:    cfg.Cache.SummaryTTL,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("contas is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop consuming events before the bus and database close.
	if refresher != nil {
		if err := refresher.Stop(); err != nil {
			slog.Error("failed to stop worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("contas shutdown complete")
}

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

// loadRulesFromDatabase loads the stored insight rules of every tenant.
// Rules are configured through POST /insight-rules; there are no defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	tenants, err := repo.ListTenants(ctx)
	if err != nil {
		slog.Warn("failed to list tenants", "error", err)
		return nil
	}

	var loaded []*domain.InsightRule
	for _, tenantID := range tenants {
		stored, err := repo.ListInsightRules(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to list rules of %s: %w", tenantID, err)
		}
		loaded = append(loaded, stored...)
	}

	if len(loaded) == 0 {
		slog.Info("no insight rules in database - configure via POST /insight-rules")
		return nil
	}

	slog.Info("loading insight rules from database", "count", len(loaded), "tenants", len(tenants))
	return engine.ReloadRules(loaded)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  contas - bills and monthly balance")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /account-types                 - Form policy per account type")
	fmt.Println("    POST /drafts, /drafts/apply         - Build and edit a bill draft")
	fmt.Println("    POST /drafts/validate               - Validate a draft")
	fmt.Println("    GET  /bills, POST /bills            - List or create bills")
	fmt.Println("    GET  /bills/{id}/schedule           - Installment due dates")
	fmt.Println("    PUT  /figures/{year}/{month}        - Record a month")
	fmt.Println("    GET  /summary?months=N              - Dashboard summary")
	fmt.Println("    GET  /summary/export.xlsx           - Summary workbook")
	fmt.Println("    GET  /summary/{year}/{month}/report - Month insight report")
	fmt.Println("    POST /insight-rules/reload          - Hot-reload insight rules")
	fmt.Println("    GET  /health, /metrics              - Health and Prometheus metrics")
	fmt.Println()
}
