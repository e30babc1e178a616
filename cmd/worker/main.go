package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ncompliance/ncompliance/internal/app"
	jobmetrics "github.com/ncompliance/ncompliance/internal/jobs"
	"github.com/ncompliance/ncompliance/internal/notifications"
	"github.com/ncompliance/ncompliance/internal/platform/cache"
	"github.com/ncompliance/ncompliance/internal/platform/db"
	"github.com/ncompliance/ncompliance/jobs"
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
	loc := cfg.Location()

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	// Worker metrics go to the default registry; the worker serves no HTTP.
	metrics := jobmetrics.NewMetrics(nil)

	notifService := notifications.NewService(notifications.NewRepository(pool), notifications.Config{
		Cache:    notifications.NewUnreadCache(redisClient, 5*time.Minute),
		Mailer:   jobClient,
		Metrics:  metrics,
		Logger:   logger,
		Location: loc,
	})
	sweepJob := jobs.NewExpirySweepJob(notifications.NewSweeper(notifService, cfg.ExpiryAlertDays), logger, metrics).
		WithLock(jobs.RedisDayLocker(redisClient, 30*time.Minute))
	mailJob := jobs.NewMailJob(jobs.NewSMTPSender(jobs.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}), logger, metrics)

	sweepTask, err := jobs.NewExpirySweepTask("")
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExpirySweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpirySweepCron, Task: sweepTask, Options: jobs.ExpirySweepOptions()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("sweep_cron", cfg.ExpirySweepCron), slog.String("timezone", loc.String()))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
