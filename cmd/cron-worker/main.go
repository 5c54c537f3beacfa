package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gikundiro/fanpay-backend/internal/cron"
	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/instance"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/metrics"
	"github.com/gikundiro/fanpay-backend/pkg/migrate"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

// run owns every connection so its defers close them on the way out.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(logg, "redis", redisClient.Close)

	scope := cfg.App.Env
	if scope == "" {
		scope = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redis.Key("cron", "lock", scope), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	schedule, err := buildSchedule(cfg, logg, dbClient)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Schedule: schedule,
		Lock:     lock,
		Metrics:  metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer),
		Tick:     cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(logg.WithField(ctx, "tick", cfg.Cron.Interval.String()), "starting cron worker")
	return service.Run(ctx)
}

func buildSchedule(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Schedule, error) {
	store := outbox.NewStore(dbClient.DB())
	stale, err := cron.NewStaleSmsJob(cron.StaleSmsJobParams{
		Logger:     logg,
		Conn:       dbClient.DB(),
		DB:         dbClient,
		Outbox:     outbox.NewEmitter(store, logg),
		StaleAfter: cfg.Sms.StaleAfter,
		BatchSize:  cfg.Sms.StaleBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("stale sms job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Store:        store,
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	schedule := cron.NewSchedule()
	for _, e := range []struct {
		job   cron.Job
		every time.Duration
	}{
		{stale, cfg.Cron.StaleSmsEvery},
		{retention, cfg.Cron.RetentionEvery},
	} {
		if err := schedule.Add(e.job, e.every); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.job.Name(), err)
		}
	}
	return schedule, nil
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
