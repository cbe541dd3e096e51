package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sourcing/internal/app"
	"github.com/odyssey-erp/sourcing/internal/compare"
	"github.com/odyssey-erp/sourcing/internal/inquiry"
	"github.com/odyssey-erp/sourcing/internal/platform/cache"
	"github.com/odyssey-erp/sourcing/internal/platform/db"
	"github.com/odyssey-erp/sourcing/internal/shared"
	"github.com/odyssey-erp/sourcing/internal/suppliers"
	"github.com/odyssey-erp/sourcing/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := cfg.ComparePolicy()
	if err != nil {
		logger.Error("promotion policy", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(pool)
	supplierRepo := suppliers.NewRepository(pool)
	sessionStore := compare.NewStore(redisClient, cfg.CompareSessionTTL)
	inquiryRepo := inquiry.NewRepository(pool)
	inquiryService := inquiry.NewService(inquiryRepo, supplierRepo, sessionStore, auditLogger, policy, logger)

	warmupJob := jobs.NewReconcileWarmupJob(inquiryService, pool, redisClient, cfg.CompareSessionTTL, logger)

	warmupTask, err := jobs.NewReconcileWarmupTask(jobs.ReconcileWarmupPayload{Scope: "open"})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcileWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
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
