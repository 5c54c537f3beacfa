package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gikundiro/fanpay-backend/api/controllers"
	"github.com/gikundiro/fanpay-backend/api/middleware"
	"github.com/gikundiro/fanpay-backend/pkg/auth"
	"github.com/gikundiro/fanpay-backend/pkg/config"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	gatherer prometheus.Gatherer,
	dbPinger controllers.Pinger,
	redisClient *redis.Client,
	bigqueryPinger controllers.Pinger,
	sessions middleware.AccessSessionChecker,
	ingestor controllers.SmsIngestor,
	reviewService controllers.ManualReviewService,
	promptService controllers.PromptService,
	paymentService controllers.PaymentFailer,
	auditLog controllers.AuditLister,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	inboundThrottle := middleware.NewThrottle("sms_inbound", cfg.Sms.InboundRateWindow).
		PerIP(cfg.Sms.InboundIPLimit).
		PerBodyField("fromAddress", cfg.Sms.InboundSenderLimit)

	var redisPinger controllers.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "db", Pinger: dbPinger},
			controllers.Dependency{Name: "redis", Pinger: redisPinger},
			controllers.Dependency{Name: "bigquery", Pinger: bigqueryPinger},
		))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/sms", func(r chi.Router) {
		r.With(
			middleware.WebhookToken(cfg.Sms.WebhookToken, logg),
			inboundThrottle.Middleware(rateStore(redisClient), logg),
		).Post("/inbound", controllers.SmsInbound(ingestor, logg))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(auth.NewSigner(cfg.JWT), sessions, logg))
		r.Use(middleware.Idempotency(idempotencyStore(redisClient), logg))

		r.Route("/sms/manual", func(r chi.Router) {
			r.Use(middleware.RequirePermission(enums.PermissionSmsAttach, logg))
			r.Get("/", controllers.AdminListManualSms(reviewService, logg))
			r.Get("/payments", controllers.AdminListManualPayments(reviewService, logg))
			r.Post("/{smsId}/attach", controllers.AdminAttachSms(reviewService, logg))
			r.Post("/{smsId}/dismiss", controllers.AdminDismissSms(reviewService, logg))
			r.Post("/{smsId}/retry", controllers.AdminRetrySms(reviewService, logg))
		})

		r.Route("/sms/parser", func(r chi.Router) {
			r.Use(middleware.RequirePermission(enums.PermissionSmsParserUpdate, logg))
			r.Get("/prompts", controllers.AdminListPrompts(promptService, logg))
			r.Get("/prompts/active", controllers.AdminActivePrompt(promptService, logg))
			r.Post("/prompts", controllers.AdminCreatePrompt(promptService, logg))
			r.Post("/prompts/{promptId}/activate", controllers.AdminActivatePrompt(promptService, logg))
			r.Post("/test", controllers.AdminTestPrompt(promptService, logg))
		})

		r.With(middleware.RequirePermission(enums.PermissionPaymentsRefund, logg)).
			Post("/payments/{paymentId}/fail", controllers.AdminFailPayment(paymentService, logg))

		r.With(middleware.RequirePermission(enums.PermissionAuditView, logg)).
			Get("/audit", controllers.AdminListAudit(auditLog, logg))
	})

	return r
}

// rateStore and idempotencyStore return a nil interface for a nil client so
// the middleware turns itself off.
func rateStore(c *redis.Client) middleware.RateLimiterStore {
	if c == nil {
		return nil
	}
	return c
}

func idempotencyStore(c *redis.Client) redis.IdempotencyStore {
	if c == nil {
		return nil
	}
	return c
}
