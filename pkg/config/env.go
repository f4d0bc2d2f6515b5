package config

const EnvPrefix = "GOGIFT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EventingBackendPubSub = "pubsub"
	EventingBackendKafka  = "kafka"
)

const (
	EnvAppEnv    = "GOGIFT_APP_ENV"
	EnvPort      = "GOGIFT_APP_PORT"
	EnvLogLevel  = "GOGIFT_LOG_LEVEL"
	EnvRedisURL  = "GOGIFT_REDIS_URL"
	EnvJWTSecret = "GOGIFT_JWT_SECRET"
	EnvJWTIssuer = "GOGIFT_JWT_ISSUER"

	EnvDBDSN  = "GOGIFT_DB_DSN"
	EnvDBHost = "GOGIFT_DB_HOST"
	EnvDBPort = "GOGIFT_DB_PORT"
	EnvDBUser = "GOGIFT_DB_USER"
	EnvDBName = "GOGIFT_DB_NAME"

	EnvCheckoutServiceFeeRate = "GOGIFT_CHECKOUT_SERVICE_FEE_RATE"
	EnvCheckoutPaymentExpiry  = "GOGIFT_CHECKOUT_PAYMENT_EXPIRY"
	EnvCodePoolStrict         = "GOGIFT_CODEPOOL_STRICT_FIXED_POOL"
	EnvReconcilerInterval     = "GOGIFT_RECONCILER_INTERVAL"
	EnvEventingBackend        = "GOGIFT_EVENTING_BACKEND"
	EnvKafkaBrokers           = "GOGIFT_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
