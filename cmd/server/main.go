// Package main is the entrypoint for the Fine Print API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/fineprint/internal/ai/provider"
	"github.com/kiranshivaraju/fineprint/internal/api"
	"github.com/kiranshivaraju/fineprint/internal/api/handler"
	mw "github.com/kiranshivaraju/fineprint/internal/api/middleware"
	"github.com/kiranshivaraju/fineprint/internal/bulk"
	"github.com/kiranshivaraju/fineprint/internal/config"
	"github.com/kiranshivaraju/fineprint/internal/costs"
	"github.com/kiranshivaraju/fineprint/internal/detect"
	"github.com/kiranshivaraju/fineprint/internal/fetch"
	"github.com/kiranshivaraju/fineprint/internal/kv"
	"github.com/kiranshivaraju/fineprint/internal/metrics"
	"github.com/kiranshivaraju/fineprint/internal/notify"
	"github.com/kiranshivaraju/fineprint/internal/store"
	"github.com/kiranshivaraju/fineprint/internal/tabs"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneSchedule   = "@daily"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"store_backend", cfg.Store.Backend,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 2. Key-value store and event notifier
	kvStore, notifier, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer kvStore.Close()
	slog.Info("store connected", "backend", cfg.Store.Backend)

	health := map[string]handler.Pinger{"store": kvStore}

	// 3. Optional Postgres event log
	var events *store.PostgresEventLog
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		events = store.NewPostgresEventLog(pool)
		health["event_log"] = events
	}

	// 4. Analyzer
	analyzer, err := provider.New(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", analyzer.Name())

	// 5. Cost ledger and bulk queue
	ledgerOpts := []costs.Option{costs.WithNotifier(notifier), costs.WithMetrics(m)}
	if events != nil {
		ledgerOpts = append(ledgerOpts, costs.WithEventLog(events))
	}
	ledger := costs.NewLedger(costs.Config{
		PrimaryModel:   cfg.Costs.PrimaryModel,
		Retention:      cfg.Costs.Retention,
		EventLogMaxLen: cfg.Costs.EventLogMaxLen,
	}, kvStore, ledgerOpts...)

	registry := tabs.NewRegistry()
	queue := bulk.NewQueue(bulk.Config{
		MaxConcurrent: cfg.Bulk.MaxConcurrent,
		QueueCapacity: cfg.Bulk.QueueCapacity,
		JobRetention:  cfg.Bulk.JobRetention,
		CacheTTL:      cfg.Bulk.AnalysisCacheTTL,
	}, bulk.Dependencies{
		Store:    kvStore,
		Analyzer: bulk.NewCachedAnalyzer(analyzer, kvStore),
		Detector: detect.NewKeywordDetector(),
		Fetcher:  fetch.NewHTTPFetcher(cfg.Fetch),
		Tabs:     registry,
		Costs:    ledger,
		Notifier: notifier,
		Metrics:  m,
	})

	// 6. Scheduled maintenance
	scheduler, err := newScheduler(ctx, cfg.Costs, ledger, events)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// 7. Build router with dependencies
	router := newRouter(cfg.Auth, kvStore, queue, registry, ledger, health, m)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	queueDone := make(chan error, 1)
	go func() {
		queueDone <- queue.Run(ctx)
	}()

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal, server error or queue failure
	var runErr error
	select {
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	case err := <-queueDone:
		queueDone <- err
		if err != nil {
			runErr = fmt.Errorf("bulk queue: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown: %w", err)
	}

	select {
	case err := <-queueDone:
		if err != nil && runErr == nil {
			runErr = fmt.Errorf("bulk queue: %w", err)
		}
	case <-shutdownCtx.Done():
		slog.Warn("bulk workers did not stop before the shutdown timeout")
	}

	if runErr == nil {
		slog.Info("server stopped gracefully")
	}
	return runErr
}

// openStore connects the configured key-value backend. On Redis, events are
// also appended to a stream on the same server.
func openStore(ctx context.Context, cfg *config.Config) (kv.Store, models.Notifier, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := kv.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, notify.Log{}, nil
	default:
		s, err := kv.NewRedisStore(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis store: %w", err)
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return s, notify.Multi{notify.Log{}, notify.NewRedis(s.Client(), notify.DefaultStream)}, nil
	}
}

// newScheduler registers the monthly alert reset and, with a Postgres event
// log, a daily prune of events older than the cost retention.
func newScheduler(ctx context.Context, cfg config.CostsConfig, ledger *costs.Ledger, events *store.PostgresEventLog) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	if _, err := c.AddFunc(cfg.AlertResetSchedule, func() {
		if err := ledger.ResetMonthlyAlerts(ctx); err != nil {
			slog.Error("resetting budget alerts", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule alert reset: %w", err)
	}

	if events != nil && cfg.Retention > 0 {
		if _, err := c.AddFunc(pruneSchedule, func() {
			cutoff := time.Now().Add(-cfg.Retention)
			n, err := events.DeleteBefore(ctx, cutoff)
			if err != nil {
				slog.Error("pruning cost events", "error", err)
				return
			}
			slog.Info("cost events pruned", "deleted", n, "cutoff", cutoff)
		}); err != nil {
			return nil, fmt.Errorf("schedule event prune: %w", err)
		}
	}
	return c, nil
}

func newRouter(
	authCfg config.AuthConfig,
	kvStore kv.Store,
	jobs handler.JobService,
	registry handler.TabRegistry,
	ledger handler.CostService,
	health map[string]handler.Pinger,
	m *metrics.Metrics,
) http.Handler {
	deps := api.Dependencies{
		Auth: mw.NewAuth(mw.KeysFromConfig(authCfg)),

		HealthHandler:  handler.NewHealthHandler(health),
		MetricsHandler: m.Handler(),

		SubmitURLList: handler.NewSubmitURLListHandler(jobs),
		SubmitSession: handler.NewSubmitSessionHandler(jobs),
		ListJobs:      handler.NewListJobsHandler(jobs),
		GetJob:        handler.NewGetJobHandler(jobs),
		CancelJob:     handler.NewCancelJobHandler(jobs),
		DeleteJob:     handler.NewDeleteJobHandler(jobs),
		ExportJob:     handler.NewExportJobHandler(jobs),

		ReplaceTabs: handler.NewReplaceTabsHandler(registry),
		ListTabs:    handler.NewListTabsHandler(registry),

		RecordCost:      handler.NewRecordCostHandler(ledger),
		CostReport:      handler.NewCostReportHandler(ledger),
		Recommendations: handler.NewRecommendationsHandler(ledger),
		UserCost:        handler.NewUserCostHandler(ledger),
		CostExport:      handler.NewCostExportHandler(ledger),
		ListAlerts:      handler.NewListAlertsHandler(ledger),
		ResetAlerts:     handler.NewResetAlertsHandler(ledger),
	}
	if authCfg.RateLimitEnabled {
		deps.RateLimit = mw.NewRateLimit(kvStore, authCfg.RateLimitPerMin)
	}
	return api.NewRouter(deps)
}
