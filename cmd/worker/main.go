package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/internal/cron"
	"github.com/mateoalvarez/carhive-backend/internal/fleet"
	"github.com/mateoalvarez/carhive-backend/internal/notifications"
	"github.com/mateoalvarez/carhive-backend/pkg/config"
	"github.com/mateoalvarez/carhive-backend/pkg/db"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
	"github.com/mateoalvarez/carhive-backend/pkg/metrics"
	"github.com/mateoalvarez/carhive-backend/pkg/redis"
)

const (
	lockKey      = "carhive:worker:lock"
	lockTTL      = 55 * time.Minute
	sweepCadence = time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	bookingsService, err := bookings.NewService(
		bookings.NewRepository(dbClient.DB()),
		fleet.NewRepository(dbClient.DB()),
		notifications.NewLogNotifier(logg),
		nil,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create bookings service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewBookingSweepJob(cron.BookingSweepJobParams{
		Logger:   logg,
		Bookings: bookingsService,
	})
	if err != nil {
		logg.Error(ctx, "failed to create booking sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey, lockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create worker lock", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	worker, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Interval: sweepCadence,
	})
	if err != nil {
		logg.Error(ctx, "failed to create maintenance worker", err)
		os.Exit(1)
	}

	logg.Info(logg.WithField(ctx, "env", cfg.App.Env), "starting maintenance worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}
}
