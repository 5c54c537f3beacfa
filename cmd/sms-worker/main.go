package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gikundiro/fanpay-backend/internal/audit"
	"github.com/gikundiro/fanpay-backend/internal/dependents"
	"github.com/gikundiro/fanpay-backend/internal/notifications"
	"github.com/gikundiro/fanpay-backend/internal/parser"
	"github.com/gikundiro/fanpay-backend/internal/pipeline"
	"github.com/gikundiro/fanpay-backend/internal/reconcile"
	"github.com/gikundiro/fanpay-backend/internal/settlement"
	"github.com/gikundiro/fanpay-backend/pkg/breaker"
	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/instance"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/metrics"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/outbox/idempotency"
	"github.com/gikundiro/fanpay-backend/pkg/pubsub"
	"github.com/gikundiro/fanpay-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "sms-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "sms-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sms-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency guard", err)

	breakers := breaker.NewRegistry(metrics.NewBreakerMetrics(prometheus.DefaultRegisterer), nil)
	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	conn := dbClient.DB()
	outboxEmitter := outbox.NewEmitter(outbox.NewStore(conn), logg)
	auditRecorder := audit.NewRecorder(conn)

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		DB:         dbClient,
		Dependents: dependents.NewRegistry(),
		Audit:      auditRecorder,
		Outbox:     outboxEmitter,
		Logger:     logg,
	})
	requireResource(ctx, logg, "settlement service", err)

	parserOpts := parser.Options{
		Prompts:         parser.NewPromptRepository(conn),
		DegradedPenalty: cfg.Parser.DegradedPenalty,
		Logger:          logg,
	}
	if cfg.Parser.ClassifierEnabled() {
		classifierBreaker, err := registerBreaker(breakers, breaker.NameClassifier, cfg.Breakers.Classifier())
		requireResource(ctx, logg, "classifier breaker", err)
		parserOpts.Classifier = parser.NewOpenAIClassifier(cfg.Parser)
		parserOpts.Breaker = classifierBreaker
	}
	parserService, err := parser.NewService(parser.ServiceParams{
		DB:         dbClient,
		Repository: parser.NewRepository(conn),
		Parser:     parser.NewParser(parserOpts),
		Logger:     logg,
	})
	requireResource(ctx, logg, "parser service", err)

	reconciler, err := reconcile.NewReconciler(reconcile.ReconcilerParams{
		DB:         dbClient,
		Repository: reconcile.NewRepository(conn),
		Matcher:    reconcile.NewMatcher(reconcile.ConfigFrom(cfg.Matching)),
		Settlement: settlementService,
		Logger:     logg,
	})
	requireResource(ctx, logg, "reconciler", err)

	processor, err := pipeline.NewProcessor(pipeline.ProcessorParams{
		Conn:       conn,
		DB:         dbClient,
		Parser:     parserService,
		Reconciler: reconciler,
		Outbox:     outboxEmitter,
		Metrics:    pipelineMetrics,
		Logger:     logg,
	})
	requireResource(ctx, logg, "sms processor", err)

	smsConsumer, err := pipeline.NewConsumer(processor, pubsubClient.SmsSubscription(), guard, logg)
	requireResource(ctx, logg, "sms consumer", err)

	var notificationConsumer *notifications.Consumer
	if cfg.Notifications.Enabled {
		sender, err := notifications.NewHTTPSender(cfg.Notifications)
		requireResource(ctx, logg, "notification sender", err)
		notifierBreaker, err := registerBreaker(breakers, breaker.NameNotifications, cfg.Breakers.Notifier())
		requireResource(ctx, logg, "notifier breaker", err)
		notifier, err := notifications.NewService(notifications.ServiceParams{
			Sender:   sender,
			Breaker:  notifierBreaker,
			SenderID: cfg.Notifications.SenderID,
			Logger:   logg,
		})
		requireResource(ctx, logg, "notification service", err)
		notificationConsumer, err = notifications.NewConsumer(notifier, pubsubClient.PaymentsSubscription(), guard, logg)
		requireResource(ctx, logg, "notification consumer", err)
	}

	service, err := NewService(ServiceParams{
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		SmsConsumer:          smsConsumer,
		NotificationConsumer: notificationConsumer,
	})
	requireResource(ctx, logg, "sms worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":           cfg.App.Env,
		"serviceKind":   cfg.Service.Kind,
		"instance":      instance.GetID(),
		"notifications": cfg.Notifications.Enabled,
	})
	logg.Info(runCtx, "sms worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "sms worker failed", err)
		os.Exit(1)
	}
}

func registerBreaker(registry *breaker.Registry, name string, cfg config.BreakerConfig) (*breaker.Breaker, error) {
	return registry.Register(breaker.Options{
		Name:             name,
		Timeout:          cfg.Timeout,
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
	})
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
