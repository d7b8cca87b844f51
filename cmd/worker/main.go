package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/aegis-desktop/aegis/internal/app"
	"github.com/aegis-desktop/aegis/internal/audit"
	jobmetrics "github.com/aegis-desktop/aegis/internal/jobs"
	"github.com/aegis-desktop/aegis/jobs"
)

// The worker maintains the state shared through Redis: the audit stream.
// Caches, rate-limit windows, and elevation sessions are process-local to
// aegisd and swept there.
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

	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	auditService := audit.NewService(cfg.AuditRetention, redisClient, logger)
	metrics := jobmetrics.NewMetrics(nil)
	trimJob := jobs.NewAuditTrimJob(auditService, cfg.AuditMaxAge, logger, metrics)

	trimTask, err := jobs.NewAuditTrimTask(cfg.AuditMaxAge)
	if err != nil {
		logger.Error("build trim task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditTrim, Handler: trimJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: trimTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
