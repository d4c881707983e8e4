package config

// EnvPrefix is handed to envconfig; every field also declares its full
// variable name so lookups resolve on the tag alone.
const EnvPrefix = "BEATVAULT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "BEATVAULT_APP_ENV"
	EnvPort      = "BEATVAULT_APP_PORT"
	EnvDBDSN     = "BEATVAULT_DB_DSN"
	EnvDBHost    = "BEATVAULT_DB_HOST"
	EnvDBUser    = "BEATVAULT_DB_USER"
	EnvDBName    = "BEATVAULT_DB_NAME"
	EnvDBPass    = "BEATVAULT_DB_PASSWORD"
	EnvRedisURL  = "BEATVAULT_REDIS_URL"
	EnvJWTSecret = "BEATVAULT_JWT_SECRET"
	EnvJWTIssuer = "BEATVAULT_JWT_ISSUER"

	EnvStripeAPIKey   = "BEATVAULT_STRIPE_API_KEY"
	EnvStripeSecret   = "BEATVAULT_STRIPE_SECRET"
	EnvStripePriceID  = "BEATVAULT_STRIPE_SUBSCRIPTION_PRICE_ID"
	EnvStripeCurrency = "BEATVAULT_STRIPE_CURRENCY"

	EnvAllowedOrigins = "BEATVAULT_HTTP_ALLOWED_ORIGINS"
	EnvGCPProjectID   = "BEATVAULT_GCP_PROJECT_ID"
	EnvEventsTopic    = "BEATVAULT_PUBSUB_EVENTS_TOPIC"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
