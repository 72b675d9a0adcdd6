package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/portcullis-nac/portcullis/internal/app"
	jobmetrics "github.com/portcullis-nac/portcullis/internal/jobs"
	"github.com/portcullis-nac/portcullis/internal/lifecycle"
	"github.com/portcullis-nac/portcullis/internal/platform/cache"
	"github.com/portcullis-nac/portcullis/internal/platform/db"
	"github.com/portcullis-nac/portcullis/internal/policy"
	"github.com/portcullis-nac/portcullis/jobs"
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

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	compilerService, err := app.NewCompiler(cfg, app.CompilerDeps{
		Source:  policy.NewRepository(pool),
		Redis:   redisClient,
		Logger:  logger,
		Metrics: metrics,
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
	defer func() { _ = jobClient.Close() }()

	monitor, err := app.NewMonitor(cfg, lifecycle.NewRepository(pool), jobClient, logger, metrics)
	if err != nil {
		logger.Error("init lifecycle monitor", slog.Any("error", err))
		os.Exit(1)
	}

	var sender jobs.Sender = jobs.LogSender{Logger: logger}
	if addr := cfg.SMTPAddr(); addr != "" {
		sender = &jobs.SMTPSender{Addr: addr, From: cfg.SMTPFrom}
	}
	mailJob := &jobs.MailJob{Sender: sender, Logger: logger}
	compileJob := jobs.NewRadiusCompileJob(compilerService, logger)
	lifecycleJob := jobs.NewLifecycleJob(monitor, logger, metrics)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
		{Type: jobs.TaskRadiusCompile, Handler: compileJob.Handle},
	}
	handlers = append(handlers, lifecycleJob.Handlers()...)

	cron, err := cronRegistrations(cfg)
	if err != nil {
		logger.Error("build cron tasks", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().AsynqOpt(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func cronRegistrations(cfg *app.Config) ([]jobs.CronRegistration, error) {
	now := time.Now().UTC()
	var out []jobs.CronRegistration
	for _, entry := range []struct {
		spec string
		task string
	}{
		{cfg.CronCompile, jobs.TaskRadiusCompile},
		{cfg.CronExpirySweep, jobs.TaskCredentialExpirySweep},
		{cfg.CronExpiryWarn, jobs.TaskCredentialExpiryWarn},
		{cfg.CronNadHealth, jobs.TaskNadHealth},
	} {
		if entry.spec == "" {
			continue
		}
		task, err := jobs.NewTaskByName(entry.task, now)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.CronRegistration{
			Spec:    entry.spec,
			Task:    task,
			Options: []asynq.Option{asynq.Unique(time.Minute)},
		})
	}
	return out, nil
}
