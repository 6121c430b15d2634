package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mateoalvarez/carhive-backend/api/routes"
	"github.com/mateoalvarez/carhive-backend/internal/analytics"
	"github.com/mateoalvarez/carhive-backend/internal/auth"
	"github.com/mateoalvarez/carhive-backend/internal/bookings"
	"github.com/mateoalvarez/carhive-backend/internal/fleet"
	"github.com/mateoalvarez/carhive-backend/internal/notifications"
	"github.com/mateoalvarez/carhive-backend/internal/payments"
	"github.com/mateoalvarez/carhive-backend/internal/users"
	stripewebhook "github.com/mateoalvarez/carhive-backend/internal/webhooks/stripe"
	"github.com/mateoalvarez/carhive-backend/pkg/config"
	"github.com/mateoalvarez/carhive-backend/pkg/db"
	"github.com/mateoalvarez/carhive-backend/pkg/logger"
	"github.com/mateoalvarez/carhive-backend/pkg/metrics"
	"github.com/mateoalvarez/carhive-backend/pkg/redis"
	"github.com/mateoalvarez/carhive-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	if cfg.FeatureFlags.AutoMigrate {
		if err := dbClient.AutoMigrate(ctx, logg); err != nil {
			logg.Error(ctx, "failed to migrate schema", err)
			os.Exit(1)
		}
	}

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

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	notifier := notifications.NewLogNotifier(logg)

	fleetService, err := fleet.NewService(fleet.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(ctx, "failed to create fleet service", err)
		os.Exit(1)
	}

	bookingsRepo := bookings.NewRepository(dbClient.DB())
	bookingsService, err := bookings.NewService(bookingsRepo, fleet.NewRepository(dbClient.DB()), notifier, bookingMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create bookings service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:         payments.NewRepository(dbClient.DB()),
		Bookings:     bookingsService,
		BookingsRepo: bookingsRepo,
		Stripe:       payments.NewStripeClient(stripeClient),
		DB:           dbClient,
		Config:       cfg.Payments,
		Notifier:     notifier,
		Metrics:      bookingMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		DB:             dbClient,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	usersService, err := users.NewService(users.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create users service", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(dbClient.DB())
	if err != nil {
		logg.Error(ctx, "failed to create analytics service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments: paymentsService,
		Metrics:  bookingMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Payments.WebhookEventTTL, "stripe")
	if err != nil {
		logg.Error(ctx, "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	handler := routes.NewRouter(routes.Deps{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		Stripe:    stripeClient,
		Gatherer:  registry,
		Auth:      authService,
		Users:     usersService,
		Fleet:     fleetService,
		Bookings:  bookingsService,
		Payments:  paymentsService,
		Analytics: analyticsService,
		Webhooks:  webhookService,
		Guard:     webhookGuard,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
		logg.Info(logCtx, "api server stopped")
	}
}
