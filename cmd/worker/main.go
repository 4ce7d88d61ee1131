package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/habilita/habilita/internal/app"
	"github.com/habilita/habilita/internal/backend"
	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/indicators/importer"
	jobmetrics "github.com/habilita/habilita/internal/jobs"
	"github.com/habilita/habilita/internal/observability"
	"github.com/habilita/habilita/internal/platform/cache"
	"github.com/habilita/habilita/internal/platform/db"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/internal/snapshots"
	"github.com/habilita/habilita/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	// The worker has no user session: every backend call uses the service
	// token.
	if cfg.BackendToken == "" {
		logger.Warn("BACKEND_TOKEN is empty, backend calls from jobs will be anonymous")
	}
	client := backend.New(backend.Config{
		BaseURL:    cfg.BackendURL,
		Token:      cfg.BackendToken,
		AuthScheme: cfg.BackendAuthScheme,
		Timeout:    cfg.BackendTimeout,
		MaxPages:   cfg.BackendMaxPages,
		Logger:     logger,
		OnError:    metrics.ObserveBackendError,
	})
	indicatorService := indicators.NewService(client, logger)

	var auditor importer.Auditor
	handlers := []jobs.TaskHandler{}
	var cron []jobs.CronRegistration

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Warn("postgres unavailable, compliance snapshots disabled", slog.Any("error", err))
	} else {
		defer pool.Close()
		auditor = shared.NewAuditLogger(pool)

		snapshotService := snapshots.NewService(indicatorService, snapshots.NewRepository(pool), logger)
		snapshotJob := snapshots.NewJob(snapshotService, jobMetrics, logger)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskComplianceSnapshot, Handler: snapshotJob.Handle})

		snapshotTask, err := jobs.NewComplianceSnapshotTask(jobs.ComplianceSnapshotPayload{})
		if err != nil {
			return err
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.SnapshotCron,
			Task:    snapshotTask,
			Options: []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(10 * time.Minute)},
		})
	}

	importService := importer.NewService(indicatorService, client, importer.NewStore(redisClient, cfg.ImportPreviewTTL), auditor, logger)
	commitJob := importer.NewCommitJob(importService, jobMetrics, logger)
	handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskImportCommit, Handler: commitJob.Handle})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts.AsynqOpts(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker started", slog.Int("handlers", len(handlers)), slog.String("snapshot_cron", cfg.SnapshotCron))
	return worker.Run(ctx)
}
