package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gikundiro/fanpay-backend/api/routes"
	"github.com/gikundiro/fanpay-backend/internal/audit"
	"github.com/gikundiro/fanpay-backend/internal/dependents"
	"github.com/gikundiro/fanpay-backend/internal/ingestion"
	"github.com/gikundiro/fanpay-backend/internal/parser"
	"github.com/gikundiro/fanpay-backend/internal/review"
	"github.com/gikundiro/fanpay-backend/internal/settlement"
	"github.com/gikundiro/fanpay-backend/pkg/bigquery"
	"github.com/gikundiro/fanpay-backend/pkg/breaker"
	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/db"
	"github.com/gikundiro/fanpay-backend/pkg/instance"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/metrics"
	"github.com/gikundiro/fanpay-backend/pkg/migrate"
	"github.com/gikundiro/fanpay-backend/pkg/outbox"
	"github.com/gikundiro/fanpay-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
	requireResource(logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.NewPipelineMetrics(registry)
	breakers := breaker.NewRegistry(metrics.NewBreakerMetrics(registry), nil)

	conn := dbClient.DB()
	outboxEmitter := outbox.NewEmitter(outbox.NewStore(conn), logg)
	auditRecorder := audit.NewRecorder(conn)

	gateway, err := ingestion.NewGateway(ingestion.GatewayParams{
		DB:      dbClient,
		Outbox:  outboxEmitter,
		Metrics: pipelineMetrics,
		Logger:  logg,
	})
	requireResource(logg, "ingestion gateway", err)

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		DB:         dbClient,
		Dependents: dependents.NewRegistry(),
		Audit:      auditRecorder,
		Outbox:     outboxEmitter,
		Logger:     logg,
	})
	requireResource(logg, "settlement service", err)

	reviewService, err := review.NewService(review.ServiceParams{
		Conn:       conn,
		DB:         dbClient,
		Settlement: settlementService,
		Audit:      auditRecorder,
		Outbox:     outboxEmitter,
		Logger:     logg,
	})
	requireResource(logg, "review service", err)

	promptRepo := parser.NewPromptRepository(conn)
	smsParser, err := newParser(cfg, breakers, promptRepo, logg)
	requireResource(logg, "parser", err)

	promptService, err := parser.NewPromptService(parser.PromptServiceParams{
		DB:         dbClient,
		Repository: promptRepo,
		Parser:     smsParser,
		Audit:      auditRecorder,
		Logger:     logg,
	})
	requireResource(logg, "prompt service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(
			cfg,
			logg,
			registry,
			dbClient,
			redisClient,
			bqClient,
			redisClient,
			gateway,
			reviewService,
			promptService,
			settlementService,
			auditRecorder,
		),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "shutting down api server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

// newParser wires the classifier behind its breaker when an API key is
// configured. Without one the parser runs on carrier templates only.
func newParser(cfg *config.Config, breakers *breaker.Registry, prompts *parser.PromptRepository, logg *logger.Logger) (*parser.Parser, error) {
	opts := parser.Options{
		Prompts:         prompts,
		DegradedPenalty: cfg.Parser.DegradedPenalty,
		Logger:          logg,
	}
	if cfg.Parser.ClassifierEnabled() {
		bc := cfg.Breakers.Classifier()
		b, err := breakers.Register(breaker.Options{
			Name:             breaker.NameClassifier,
			Timeout:          bc.Timeout,
			FailureThreshold: bc.FailureThreshold,
			ResetTimeout:     bc.ResetTimeout,
		})
		if err != nil {
			return nil, err
		}
		opts.Classifier = parser.NewOpenAIClassifier(cfg.Parser)
		opts.Breaker = b
	}
	return parser.NewParser(opts), nil
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
