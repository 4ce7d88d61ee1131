package main

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habilita/habilita/cmd/habilita/cli"
	"github.com/habilita/habilita/internal/app"
	"github.com/habilita/habilita/internal/audit"
	audithttp "github.com/habilita/habilita/internal/audit/http"
	"github.com/habilita/habilita/internal/auth"
	"github.com/habilita/habilita/internal/backend"
	"github.com/habilita/habilita/internal/habilitacion"
	habilitacionhttp "github.com/habilita/habilita/internal/habilitacion/http"
	"github.com/habilita/habilita/internal/indicators"
	"github.com/habilita/habilita/internal/indicators/export"
	indicatorshttp "github.com/habilita/habilita/internal/indicators/http"
	"github.com/habilita/habilita/internal/indicators/importer"
	"github.com/habilita/habilita/internal/indicators/svg"
	"github.com/habilita/habilita/internal/observability"
	"github.com/habilita/habilita/internal/platform/cache"
	"github.com/habilita/habilita/internal/platform/db"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/internal/snapshots"
	"github.com/habilita/habilita/internal/view"
	"github.com/habilita/habilita/jobs"
)

type lineRenderer struct{}

func (lineRenderer) Line(width, height int, series, target []float64, labels []string, opts svg.LineOpts) (template.HTML, error) {
	return svg.Line(width, height, series, target, labels, opts)
}

type barRenderer struct{}

func (barRenderer) Bars(width, height int, values, targets []float64, labels []string, opts svg.BarOpts) (template.HTML, error) {
	return svg.Bars(width, height, values, targets, labels, opts)
}

type donutRenderer struct{}

func (donutRenderer) Donut(size int, slices []svg.Slice, opts svg.DonutOpts) (template.HTML, error) {
	return svg.Donut(size, slices, opts)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(redisOpts.AsynqOpts())
		err := jobsCLI.Run(ctx, os.Args[2:], os.Stdout)
		if closeErr := jobsCLI.Close(); closeErr != nil {
			logger.Warn("jobs cli close", slog.Any("error", closeErr))
		}
		if err != nil {
			logger.Error("jobs", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, stop, cfg, logger, redisOpts); err != nil {
		logger.Error("serve", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger, redisOpts cache.Options) error {
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	// Postgres only backs snapshots, audit and the session registry; the
	// pages keep working from the backend without it.
	var pool *pgxpool.Pool
	if cfg.PGDSN != "" {
		pool, err = db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Warn("postgres unavailable, history and audit disabled", slog.Any("error", err))
			pool = nil
		} else {
			defer pool.Close()
		}
	}

	metrics := observability.NewMetrics()
	client := backend.New(backend.Config{
		BaseURL:    cfg.BackendURL,
		Token:      cfg.BackendToken,
		AuthScheme: cfg.BackendAuthScheme,
		Timeout:    cfg.BackendTimeout,
		MaxPages:   cfg.BackendMaxPages,
		Logger:     logger,
		OnError:    metrics.ObserveBackendError,
	})

	templates, err := view.NewEngineWithLocale(cfg.LocaleTag())
	if err != nil {
		return err
	}
	sessionManager := shared.NewSessionManager(redisClient, "habilita_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	indicatorService := indicators.NewService(client, logger)

	var authRepo auth.Repository
	var auditor importer.Auditor
	var history indicatorshttp.HistoryService
	var timeline audithttp.TimelineService
	if pool != nil {
		authRepo = auth.NewRepository(pool)
		auditor = shared.NewAuditLogger(pool)
		timeline = audit.NewService(audit.NewRepository(pool))
		history = snapshots.NewService(indicatorService, snapshots.NewRepository(pool), logger)
	}
	authHandler := auth.NewHandler(logger, auth.NewService(client, authRepo), templates, sessionManager, csrfManager)

	importService := importer.NewService(indicatorService, client, importer.NewStore(redisClient, cfg.ImportPreviewTTL), auditor, logger)

	var queue indicatorshttp.ImportQueue
	if !cfg.ImportInline {
		jobClient, err := jobs.NewClient(redisOpts.AsynqOpts())
		if err != nil {
			return err
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		queue = jobClient
	}

	var pdf indicatorshttp.PDFService
	if cfg.GotenbergURL != "" {
		pdf = export.NewPDFExporter(cfg.GotenbergURL, cfg.GotenbergTimeout)
	}

	indicatorsHandler := indicatorshttp.NewHandler(logger, indicatorService, templates, csrfManager,
		lineRenderer{}, barRenderer{}, donutRenderer{},
		indicatorshttp.Options{PDF: pdf, Importer: importService, Queue: queue, History: history})
	habilitacionService := habilitacion.NewService(client, logger)
	if auditor != nil {
		habilitacionService.WithAuditor(auditor)
	}
	habilitacionHandler := habilitacionhttp.NewHandler(logger, habilitacionService, templates, csrfManager)
	auditHandler := audithttp.NewHandler(logger, timeline, templates, csrfManager)

	inspector := asynq.NewInspector(redisOpts.AsynqOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		AuthHandler:         authHandler,
		IndicatorsHandler:   indicatorsHandler,
		HabilitacionHandler: habilitacionHandler,
		AuditHandler:        auditHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.BackendURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
