package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Checkout     CheckoutConfig
	CodePool     CodePoolConfig
	Gateway      GatewayConfig
	Stripe       StripeConfig
	Reconciler   ReconcilerConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env              string `envconfig:"GOGIFT_APP_ENV" required:"true"`
	Port             string `envconfig:"GOGIFT_APP_PORT" default:"8080"`
	LogLevel         string `envconfig:"GOGIFT_LOG_LEVEL" default:"info"`
	LogWarnStack     bool   `envconfig:"GOGIFT_LOG_WARN_STACK" default:"false"`
	FrontendURL      string `envconfig:"GOGIFT_FRONTEND_URL" default:"http://localhost:4200"`
	PublicBackendURL string `envconfig:"GOGIFT_PUBLIC_BACKEND_URL" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GOGIFT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GOGIFT_DB_DSN"`
	Driver string `envconfig:"GOGIFT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GOGIFT_DB_HOST"`
	LegacyPort     int    `envconfig:"GOGIFT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GOGIFT_DB_USER"`
	LegacyPassword string `envconfig:"GOGIFT_DB_PASSWORD"`
	LegacyName     string `envconfig:"GOGIFT_DB_NAME"`
	LegacySSLMode  string `envconfig:"GOGIFT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GOGIFT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GOGIFT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GOGIFT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GOGIFT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GOGIFT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GOGIFT_REDIS_ADDR"`
	Password     string        `envconfig:"GOGIFT_REDIS_PASSWORD"`
	DB           int           `envconfig:"GOGIFT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GOGIFT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GOGIFT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GOGIFT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GOGIFT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GOGIFT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"GOGIFT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"GOGIFT_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GOGIFT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GOGIFT_AUTO_MIGRATE" default:"false"`
}

type CheckoutConfig struct {
	ServiceFeeRate    string        `envconfig:"GOGIFT_CHECKOUT_SERVICE_FEE_RATE" default:"0.05"`
	Currency          string        `envconfig:"GOGIFT_CHECKOUT_CURRENCY" default:"brl"`
	PaymentExpiry     time.Duration `envconfig:"GOGIFT_CHECKOUT_PAYMENT_EXPIRY" default:"5m"`
	LowStockThreshold int           `envconfig:"GOGIFT_CHECKOUT_LOW_STOCK_THRESHOLD" default:"5"`
	// OpsEmail receives low_stock notifications. Empty disables them.
	OpsEmail string `envconfig:"GOGIFT_CHECKOUT_OPS_EMAIL"`
}

// FeeRate returns the parsed service fee rate.
func (c CheckoutConfig) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.ServiceFeeRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (c CheckoutConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.ServiceFeeRate))
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvCheckoutServiceFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1)", EnvCheckoutServiceFeeRate)
	}
	if c.PaymentExpiry <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutPaymentExpiry)
	}
	return nil
}

type CodePoolConfig struct {
	// StrictFixedPool fails approval instead of serving fewer codes than purchased.
	StrictFixedPool    bool `envconfig:"GOGIFT_CODEPOOL_STRICT_FIXED_POOL" default:"false"`
	GenerationAttempts int  `envconfig:"GOGIFT_CODEPOOL_GENERATION_ATTEMPTS" default:"5"`
}

type GatewayConfig struct {
	Provider       string        `envconfig:"GOGIFT_GATEWAY_PROVIDER" default:"stripe"`
	RequestTimeout time.Duration `envconfig:"GOGIFT_GATEWAY_REQUEST_TIMEOUT" default:"10s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"GOGIFT_STRIPE_API_KEY"`
	Secret string `envconfig:"GOGIFT_STRIPE_SECRET"`
	Env    string `envconfig:"GOGIFT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type ReconcilerConfig struct {
	Interval       time.Duration `envconfig:"GOGIFT_RECONCILER_INTERVAL" default:"1m"`
	PendingTimeout time.Duration `envconfig:"GOGIFT_RECONCILER_PENDING_TIMEOUT" default:"5m"`
	GiveUpAfter    time.Duration `envconfig:"GOGIFT_RECONCILER_GIVE_UP_AFTER" default:"30m"`
	BatchSize      int           `envconfig:"GOGIFT_RECONCILER_BATCH_SIZE" default:"100"`
	LockTTL        time.Duration `envconfig:"GOGIFT_RECONCILER_LOCK_TTL" default:"50s"`
}

type EventingConfig struct {
	Backend               string        `envconfig:"GOGIFT_EVENTING_BACKEND" default:"pubsub"`
	WebhookIdempotencyTTL time.Duration `envconfig:"GOGIFT_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Backend), EventingBackendKafka)
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Backend)) {
	case EventingBackendPubSub, EventingBackendKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvEventingBackend, EventingBackendPubSub, EventingBackendKafka)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GOGIFT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"GOGIFT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOGIFT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"GOGIFT_PUBSUB_NOTIFICATION_TOPIC" default:"gogift-notification-events"`
	OrdersTopic       string `envconfig:"GOGIFT_PUBSUB_ORDERS_TOPIC" default:"gogift-order-events"`
}

type KafkaConfig struct {
	Brokers           []string `envconfig:"GOGIFT_KAFKA_BROKERS" default:"localhost:9092"`
	NotificationTopic string   `envconfig:"GOGIFT_KAFKA_NOTIFICATION_TOPIC" default:"gogift.notifications"`
	OrdersTopic       string   `envconfig:"GOGIFT_KAFKA_ORDERS_TOPIC" default:"gogift.orders"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GOGIFT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GOGIFT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GOGIFT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// RateLimitConfig caps code validation traffic per enterprise user.
type RateLimitConfig struct {
	ValidationWindow time.Duration `envconfig:"GOGIFT_RATE_LIMIT_VALIDATION_WINDOW" default:"1m"`
	ValidationLimit  int           `envconfig:"GOGIFT_RATE_LIMIT_VALIDATION_LIMIT" default:"60"`
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
