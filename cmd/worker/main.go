package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/tracechain/tracechain/internal/app"
	jobmetrics "github.com/tracechain/tracechain/internal/jobs"
	"github.com/tracechain/tracechain/internal/platform/db"
	"github.com/tracechain/tracechain/internal/security"
	"github.com/tracechain/tracechain/jobs"
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
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	// "cleanup" enqueues a single run and exits.
	if len(os.Args) > 1 && os.Args[1] == "cleanup" {
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init client", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		info, err := client.EnqueueSecurityCleanup(ctx, cfg.SecurityRetention)
		if err != nil {
			logger.Error("enqueue cleanup", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("cleanup enqueued", slog.String("task_id", info.ID), slog.String("queue", info.Queue))
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	cleanupJob := jobs.NewSecurityCleanupJob(nil, security.NewPGSink(pool), logger, jobmetrics.NewMetrics(nil))
	cleanupJob.Retention = cfg.SecurityRetention

	cleanupTask, err := jobs.NewSecurityCleanupTask(cfg.SecurityRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSecurityCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SecurityCleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
