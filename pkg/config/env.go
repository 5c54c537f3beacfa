package config

const EnvPrefix = "FANPAY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "FANPAY_APP_ENV"
	EnvPort     = "FANPAY_APP_PORT"
	EnvLogLevel = "FANPAY_LOG_LEVEL"

	EnvDBDSN  = "FANPAY_DB_DSN"
	EnvDBHost = "FANPAY_DB_HOST"
	EnvDBUser = "FANPAY_DB_USER"
	EnvDBName = "FANPAY_DB_NAME"

	EnvRedisURL = "FANPAY_REDIS_URL"

	EnvSmsWebhookToken = "FANPAY_SMS_WEBHOOK_TOKEN"
	EnvCORSOrigins     = "FANPAY_CORS_ORIGINS"
	EnvAutoMigrate     = "FANPAY_AUTO_MIGRATE"

	EnvJWTSecret = "FANPAY_JWT_SECRET"
	EnvJWTIssuer = "FANPAY_JWT_ISSUER"

	EnvGCPProjectID = "FANPAY_GCP_PROJECT_ID"

	EnvPubSubSmsTopic       = "FANPAY_PUBSUB_SMS_TOPIC"
	EnvPubSubSmsSub         = "FANPAY_PUBSUB_SMS_SUBSCRIPTION"
	EnvPubSubPaymentsTopic  = "FANPAY_PUBSUB_PAYMENTS_TOPIC"
	EnvPubSubPaymentsSub    = "FANPAY_PUBSUB_PAYMENTS_SUBSCRIPTION"
	EnvPubSubAnalyticsTopic = "FANPAY_PUBSUB_ANALYTICS_TOPIC"
	EnvPubSubAnalyticsSub   = "FANPAY_PUBSUB_ANALYTICS_SUBSCRIPTION"

	EnvMatchAutoThreshold  = "FANPAY_MATCH_AUTO_THRESHOLD"
	EnvMatchPlausibleFloor = "FANPAY_MATCH_PLAUSIBLE_FLOOR"
	EnvMatchLookback       = "FANPAY_MATCH_LOOKBACK"
	EnvMatchReferenceMode  = "FANPAY_MATCH_REFERENCE_MODE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
