package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	HTTP          HTTPConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Catalog       CatalogConfig
	Stripe        StripeConfig
	Checkout      CheckoutConfig
	Webhooks      WebhookConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BEATVAULT_APP_ENV" required:"true"`
	Port         string `envconfig:"BEATVAULT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BEATVAULT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BEATVAULT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BEATVAULT_SERVICE_KIND" default:"api"`
}

type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"BEATVAULT_HTTP_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ReadTimeout     time.Duration `envconfig:"BEATVAULT_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"BEATVAULT_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"BEATVAULT_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

type DBConfig struct {
	DSN    string `envconfig:"BEATVAULT_DB_DSN"`
	Driver string `envconfig:"BEATVAULT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BEATVAULT_DB_HOST"`
	Port     int    `envconfig:"BEATVAULT_DB_PORT" default:"5432"`
	User     string `envconfig:"BEATVAULT_DB_USER"`
	Password string `envconfig:"BEATVAULT_DB_PASSWORD"`
	Name     string `envconfig:"BEATVAULT_DB_NAME"`
	SSLMode  string `envconfig:"BEATVAULT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BEATVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BEATVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BEATVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BEATVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"BEATVAULT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BEATVAULT_REDIS_URL"`
	Address      string        `envconfig:"BEATVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"BEATVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"BEATVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BEATVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BEATVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BEATVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BEATVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BEATVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"BEATVAULT_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"BEATVAULT_JWT_ISSUER" default:"beatvault"`
	ExpirationMinutes      int    `envconfig:"BEATVAULT_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"BEATVAULT_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BEATVAULT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BEATVAULT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BEATVAULT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BEATVAULT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BEATVAULT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"BEATVAULT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit    int           `envconfig:"BEATVAULT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow  time.Duration `envconfig:"BEATVAULT_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterIPLimit int           `envconfig:"BEATVAULT_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BEATVAULT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BEATVAULT_AUTO_MIGRATE" default:"false"`
}

type CatalogConfig struct {
	// ListenDedupWindow bounds how often one listener can bump a composition's
	// listen log.
	ListenDedupWindow time.Duration `envconfig:"BEATVAULT_CATALOG_LISTEN_DEDUP_WINDOW" default:"30s"`
}

type StripeConfig struct {
	APIKey              string `envconfig:"BEATVAULT_STRIPE_API_KEY"`
	Secret              string `envconfig:"BEATVAULT_STRIPE_SECRET"`
	Env                 string `envconfig:"BEATVAULT_STRIPE_ENV" default:"test"`
	SubscriptionPriceID string `envconfig:"BEATVAULT_STRIPE_SUBSCRIPTION_PRICE_ID"`
	Currency            string `envconfig:"BEATVAULT_STRIPE_CURRENCY" default:"usd"`
	SuccessURL          string `envconfig:"BEATVAULT_STRIPE_SUCCESS_URL" default:"http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL           string `envconfig:"BEATVAULT_STRIPE_CANCEL_URL" default:"http://localhost:3000/cart"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	BreakerMaxFailures int           `envconfig:"BEATVAULT_CHECKOUT_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"BEATVAULT_CHECKOUT_BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerInterval    time.Duration `envconfig:"BEATVAULT_CHECKOUT_BREAKER_INTERVAL" default:"1m"`
}

type WebhookConfig struct {
	EventGuardTTL time.Duration `envconfig:"BEATVAULT_WEBHOOK_EVENT_GUARD_TTL" default:"72h"`
}

// EventingConfig switches domain event publishing off without stopping the
// outbox from filling; rows publish once it is re-enabled.
type EventingConfig struct {
	Enabled bool `envconfig:"BEATVAULT_EVENTING_ENABLED" default:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"BEATVAULT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"BEATVAULT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	EventsTopic        string `envconfig:"BEATVAULT_PUBSUB_EVENTS_TOPIC" default:"beatvault-domain-events"`
	EventsSubscription string `envconfig:"BEATVAULT_PUBSUB_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BEATVAULT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BEATVAULT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BEATVAULT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"BEATVAULT_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"BEATVAULT_CRON_LOCK_TTL" default:"10m"`
	// ReconcileBatchSize bounds each page of subscribers checked against Stripe.
	ReconcileBatchSize  int `envconfig:"BEATVAULT_CRON_RECONCILE_BATCH_SIZE" default:"100"`
	OutboxRetentionDays int `envconfig:"BEATVAULT_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	var missing []string
	for _, key := range dsnPartEnvVars {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
