package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"google.golang.org/api/option"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Sms           SmsConfig
	Parser        ParserConfig
	Matching      MatchingConfig
	Breakers      BreakersConfig
	Notifications NotificationsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Matching.validate(); err != nil {
		return nil, err
	}
	if err := cfg.checkProd(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkProd rejects settings that are only tolerable outside prod.
func (c *Config) checkProd() error {
	if !c.App.IsProd() {
		return nil
	}
	var errs []error
	if strings.TrimSpace(c.Sms.WebhookToken) == "" {
		errs = append(errs, fmt.Errorf("%s is required in prod", EnvSmsWebhookToken))
	}
	if slices.Contains(c.App.CORSOrigins, "*") {
		errs = append(errs, fmt.Errorf("%s must list origins in prod", EnvCORSOrigins))
	}
	if c.FeatureFlags.AutoMigrate {
		errs = append(errs, fmt.Errorf("%s is dev only", EnvAutoMigrate))
	}
	return errors.Join(errs...)
}

type AppConfig struct {
	Env          string   `envconfig:"FANPAY_APP_ENV" required:"true"`
	Port         string   `envconfig:"FANPAY_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"FANPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"FANPAY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"FANPAY_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FANPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FANPAY_DB_DSN"`
	Driver string `envconfig:"FANPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FANPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"FANPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FANPAY_DB_USER"`
	LegacyPassword string `envconfig:"FANPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"FANPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"FANPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FANPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FANPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FANPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FANPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FANPAY_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FANPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FANPAY_REDIS_ADDR"`
	Password     string        `envconfig:"FANPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"FANPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FANPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FANPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FANPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FANPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FANPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds what the API needs to verify admin access tokens minted by
// the admin console. Token issuance lives outside this service.
type JWTConfig struct {
	Secret string `envconfig:"FANPAY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"FANPAY_JWT_ISSUER" required:"true"`
	// ExpirationMinutes bounds the session keys written by tooling and tests.
	ExpirationMinutes int `envconfig:"FANPAY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// AccessTTL returns the configured token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FANPAY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FANPAY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type SmsConfig struct {
	WebhookToken       string        `envconfig:"FANPAY_SMS_WEBHOOK_TOKEN"`
	StaleAfter         time.Duration `envconfig:"FANPAY_SMS_STALE_AFTER" default:"10m"`
	StaleBatch         int           `envconfig:"FANPAY_SMS_STALE_BATCH" default:"100"`
	InboundRateWindow  time.Duration `envconfig:"FANPAY_SMS_INBOUND_RATE_WINDOW" default:"1m"`
	InboundIPLimit     int           `envconfig:"FANPAY_SMS_INBOUND_IP_LIMIT" default:"600"`
	InboundSenderLimit int           `envconfig:"FANPAY_SMS_INBOUND_SENDER_LIMIT" default:"120"`
}

type ParserConfig struct {
	ClassifierURL    string        `envconfig:"FANPAY_PARSER_CLASSIFIER_URL" default:"https://api.openai.com/v1/responses"`
	ClassifierAPIKey string        `envconfig:"FANPAY_OPENAI_API_KEY"`
	ClassifierModel  string        `envconfig:"FANPAY_PARSER_CLASSIFIER_MODEL" default:"gpt-4o-mini"`
	HTTPTimeout      time.Duration `envconfig:"FANPAY_PARSER_HTTP_TIMEOUT" default:"10s"`
	DegradedPenalty  float64       `envconfig:"FANPAY_PARSER_DEGRADED_PENALTY" default:"0.15"`
}

// ClassifierEnabled reports whether an API key was provided for the
// classification aid.
func (p ParserConfig) ClassifierEnabled() bool {
	return strings.TrimSpace(p.ClassifierAPIKey) != ""
}

type MatchingConfig struct {
	AutoThreshold  float64       `envconfig:"FANPAY_MATCH_AUTO_THRESHOLD" default:"0.70"`
	PlausibleFloor float64       `envconfig:"FANPAY_MATCH_PLAUSIBLE_FLOOR" default:"0.40"`
	Lookback       time.Duration `envconfig:"FANPAY_MATCH_LOOKBACK" default:"5m"`
	ClockSkew      time.Duration `envconfig:"FANPAY_MATCH_CLOCK_SKEW" default:"1m"`
	ReferenceMode  string        `envconfig:"FANPAY_MATCH_REFERENCE_MODE" default:"exact"`
	MinSimilarity  float64       `envconfig:"FANPAY_MATCH_MIN_SIMILARITY" default:"0.80"`
}

func (m MatchingConfig) validate() error {
	if m.AutoThreshold <= 0 || m.AutoThreshold > 1 {
		return fmt.Errorf("%s must be in (0,1]", EnvMatchAutoThreshold)
	}
	if m.PlausibleFloor < 0 || m.PlausibleFloor > m.AutoThreshold {
		return fmt.Errorf("%s must be in [0,%s]", EnvMatchPlausibleFloor, EnvMatchAutoThreshold)
	}
	if m.Lookback <= 0 {
		return fmt.Errorf("%s must be positive", EnvMatchLookback)
	}
	switch strings.ToLower(strings.TrimSpace(m.ReferenceMode)) {
	case "exact", "similarity", "ignore":
	default:
		return fmt.Errorf("%s must be one of exact, similarity, ignore", EnvMatchReferenceMode)
	}
	return nil
}

// BreakerConfig holds the three knobs of a single circuit breaker.
type BreakerConfig struct {
	Timeout          time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
}

type BreakersConfig struct {
	ClassifierTimeout          time.Duration `envconfig:"FANPAY_BREAKER_CLASSIFIER_TIMEOUT" default:"8s"`
	ClassifierFailureThreshold int           `envconfig:"FANPAY_BREAKER_CLASSIFIER_FAILURES" default:"3"`
	ClassifierReset            time.Duration `envconfig:"FANPAY_BREAKER_CLASSIFIER_RESET" default:"30s"`

	NotifierTimeout          time.Duration `envconfig:"FANPAY_BREAKER_NOTIFIER_TIMEOUT" default:"5s"`
	NotifierFailureThreshold int           `envconfig:"FANPAY_BREAKER_NOTIFIER_FAILURES" default:"5"`
	NotifierReset            time.Duration `envconfig:"FANPAY_BREAKER_NOTIFIER_RESET" default:"60s"`
}

func (b BreakersConfig) Classifier() BreakerConfig {
	return BreakerConfig{
		Timeout:          b.ClassifierTimeout,
		FailureThreshold: b.ClassifierFailureThreshold,
		ResetTimeout:     b.ClassifierReset,
	}
}

func (b BreakersConfig) Notifier() BreakerConfig {
	return BreakerConfig{
		Timeout:          b.NotifierTimeout,
		FailureThreshold: b.NotifierFailureThreshold,
		ResetTimeout:     b.NotifierReset,
	}
}

type NotificationsConfig struct {
	Enabled     bool          `envconfig:"FANPAY_NOTIFY_ENABLED" default:"false"`
	Endpoint    string        `envconfig:"FANPAY_NOTIFY_ENDPOINT"`
	Token       string        `envconfig:"FANPAY_NOTIFY_TOKEN"`
	SenderID    string        `envconfig:"FANPAY_NOTIFY_SENDER_ID" default:"FANPAY"`
	HTTPTimeout time.Duration `envconfig:"FANPAY_NOTIFY_HTTP_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FANPAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"FANPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FANPAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions picks inline credentials over a credentials file. With
// neither set the Google clients fall back to application default
// credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	if raw := strings.TrimSpace(g.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(g.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

type PubSubConfig struct {
	SmsTopic              string `envconfig:"FANPAY_PUBSUB_SMS_TOPIC" required:"true"`
	SmsSubscription       string `envconfig:"FANPAY_PUBSUB_SMS_SUBSCRIPTION" required:"true"`
	PaymentsTopic         string `envconfig:"FANPAY_PUBSUB_PAYMENTS_TOPIC" required:"true"`
	PaymentsSubscription  string `envconfig:"FANPAY_PUBSUB_PAYMENTS_SUBSCRIPTION" required:"true"`
	AnalyticsTopic        string `envconfig:"FANPAY_PUBSUB_ANALYTICS_TOPIC" required:"true"`
	AnalyticsSubscription string `envconfig:"FANPAY_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
	ReceiveGoroutines     int    `envconfig:"FANPAY_PUBSUB_RECEIVE_GOROUTINES" default:"4"`
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"FANPAY_BIGQUERY_DATASET" default:"fanpay"`
	ReconciliationTable string `envconfig:"FANPAY_BIGQUERY_RECONCILIATION_TABLE" default:"reconciliation_events"`
	InsertAttempts      int    `envconfig:"FANPAY_BIGQUERY_INSERT_ATTEMPTS" default:"3"`
}

// OutboxConfig tunes the relay that drains outbox_events into Pub/Sub.
type OutboxConfig struct {
	BatchSize      int           `envconfig:"FANPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"FANPAY_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxBackoff     time.Duration `envconfig:"FANPAY_OUTBOX_MAX_BACKOFF" default:"10s"`
	PublishTimeout time.Duration `envconfig:"FANPAY_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MaxAttempts    int           `envconfig:"FANPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"FANPAY_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"FANPAY_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"FANPAY_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"FANPAY_CRON_LOCK_TTL" default:"5m"`
	StaleSmsEvery  time.Duration `envconfig:"FANPAY_CRON_STALE_SMS_EVERY" default:"2m"`
	RetentionEvery time.Duration `envconfig:"FANPAY_CRON_OUTBOX_RETENTION_EVERY" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
