package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gikundiro/fanpay-backend/internal/analytics/worker"
	"github.com/gikundiro/fanpay-backend/internal/analytics/writer"
	"github.com/gikundiro/fanpay-backend/pkg/bigquery"
	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/instance"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/idempotency"
	"github.com/gikundiro/fanpay-backend/pkg/pubsub"
	"github.com/gikundiro/fanpay-backend/pkg/redis"
)

const (
	serviceKind  = "analytics-worker"
	flushTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logg, "failed to load config", err)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	boot := context.Background()

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	if err != nil {
		fatal(logg, "failed to bootstrap redis", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(boot, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		fatal(logg, "failed to bootstrap pubsub", err)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(boot, "error closing pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(boot, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		fatal(logg, "failed to bootstrap bigquery", err)
	}
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(boot, "error closing bigquery client", err)
		}
	}()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		fatal(logg, "analytics subscription unavailable", errors.New("FANPAY_PUBSUB_ANALYTICS_SUBSCRIPTION is not set"))
	}

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		fatal(logg, "failed to create idempotency guard", err)
	}

	rows, err := writer.New(bqClient, writer.Config{
		Table:       bqClient.Tables().Reconciliation,
		MaxAttempts: cfg.BigQuery.InsertAttempts,
	})
	if err != nil {
		fatal(logg, "failed to create reconciliation writer", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := rows.Flush(flushCtx); err != nil {
			logg.Error(flushCtx, "failed to flush reconciliation rows", err)
		}
	}()

	service, err := worker.NewService(subscription, rows, guard, logg)
	if err != nil {
		fatal(logg, "failed to create analytics worker", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "analytics worker ready")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "analytics worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker shutting down gracefully")
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
