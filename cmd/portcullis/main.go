package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/portcullis-nac/portcullis/internal/app"
	compilerhttp "github.com/portcullis-nac/portcullis/internal/compiler/http"
	jobmetrics "github.com/portcullis-nac/portcullis/internal/jobs"
	"github.com/portcullis-nac/portcullis/internal/lifecycle"
	lifecyclehttp "github.com/portcullis-nac/portcullis/internal/lifecycle/http"
	"github.com/portcullis-nac/portcullis/internal/observability"
	"github.com/portcullis-nac/portcullis/internal/platform/cache"
	"github.com/portcullis-nac/portcullis/internal/platform/db"
	"github.com/portcullis-nac/portcullis/internal/policy"
	policyhttp "github.com/portcullis-nac/portcullis/internal/policy/http"
	"github.com/portcullis-nac/portcullis/jobs"
)

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
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, compile state is process-local", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	policyRepo := policy.NewRepository(dbpool)
	compilerService, err := app.NewCompiler(cfg, app.CompilerDeps{
		Source:  policyRepo,
		Redis:   redisClient,
		Logger:  logger,
		Metrics: jobMetrics,
	})
	if err != nil {
		logger.Error("init compiler", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient, err := jobs.NewClient(cfg.Redis().AsynqOpt())
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	monitor, err := app.NewMonitor(cfg, lifecycle.NewRepository(dbpool), jobClient, logger, jobMetrics)
	if err != nil {
		logger.Error("init lifecycle monitor", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(cfg.Redis().AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CompilerHandler:  compilerhttp.NewHandler(logger, compilerService),
		LifecycleHandler: lifecyclehttp.NewHandler(logger, monitor),
		PolicyHandler:    policyhttp.NewHandler(logger, policyRepo),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Database:         dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
