package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Media        MediaConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Square       SquareConfig
	SMTP         SMTPConfig
	Invoice      InvoiceConfig
	Verification VerificationConfig
	Cron         CronConfig
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
	Env          string `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZAAR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"BAZAAR_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAAR_DB_DSN"`
	Driver string `envconfig:"BAZAAR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BAZAAR_DB_HOST"`
	LegacyPort     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BAZAAR_DB_USER"`
	LegacyPassword string `envconfig:"BAZAAR_DB_PASSWORD"`
	LegacyName     string `envconfig:"BAZAAR_DB_NAME"`
	LegacySSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// queries slower than this are logged; zero disables
	SlowQueryThreshold time.Duration `envconfig:"BAZAAR_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig describes how session tokens minted by the auth provider are verified.
type AuthConfig struct {
	JWTSecret  string `envconfig:"BAZAAR_AUTH_JWT_SECRET" required:"true"`
	Issuer     string `envconfig:"BAZAAR_AUTH_ISSUER"`
	Audience   string `envconfig:"BAZAAR_AUTH_AUDIENCE" default:"authenticated"`
	CookieName string `envconfig:"BAZAAR_AUTH_COOKIE_NAME" default:"sb-access-token"`
}

type RateLimitConfig struct {
	CodeRequestWindow  time.Duration `envconfig:"BAZAAR_RATE_LIMIT_CODE_REQUEST_WINDOW" default:"10m"`
	CodeRequestLimit   int           `envconfig:"BAZAAR_RATE_LIMIT_CODE_REQUEST_LIMIT" default:"3"`
	CodeAttemptWindow  time.Duration `envconfig:"BAZAAR_RATE_LIMIT_CODE_ATTEMPT_WINDOW" default:"10m"`
	CodeAttemptLimit   int           `envconfig:"BAZAAR_RATE_LIMIT_CODE_ATTEMPT_LIMIT" default:"5"`
	PaymentWindow      time.Duration `envconfig:"BAZAAR_RATE_LIMIT_PAYMENT_WINDOW" default:"1m"`
	PaymentIPLimit     int           `envconfig:"BAZAAR_RATE_LIMIT_PAYMENT_IP_LIMIT" default:"30"`
	PaymentCallerLimit int           `envconfig:"BAZAAR_RATE_LIMIT_PAYMENT_CALLER_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BAZAAR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
	SendEmails  bool `envconfig:"BAZAAR_FEATURE_SEND_EMAILS" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"BAZAAR_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BAZAAR_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"BAZAAR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BAZAAR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName      string        `envconfig:"BAZAAR_GCS_BUCKET_NAME" required:"true"`
	InvoiceBucket   string        `envconfig:"BAZAAR_GCS_INVOICE_BUCKET"`
	ShortURLExpiry  time.Duration `envconfig:"BAZAAR_GCS_SHORT_URL_EXPIRY" default:"1h"`
	LongURLExpiry   time.Duration `envconfig:"BAZAAR_GCS_LONG_URL_EXPIRY" default:"168h"`
	UploadURLExpiry time.Duration `envconfig:"BAZAAR_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
}

// InvoiceBucketName falls back to the media bucket when no dedicated invoice bucket is set.
func (g GCSConfig) InvoiceBucketName() string {
	if strings.TrimSpace(g.InvoiceBucket) != "" {
		return g.InvoiceBucket
	}
	return g.BucketName
}

type MediaConfig struct {
	PublicBaseURL  string        `envconfig:"BAZAAR_MEDIA_PUBLIC_BASE_URL"`
	PlaceholderURL string        `envconfig:"BAZAAR_MEDIA_PLACEHOLDER_URL" default:"/images/placeholder.png"`
	CacheSignedURL bool          `envconfig:"BAZAAR_MEDIA_CACHE_SIGNED_URLS" default:"true"`
	SignTimeout    time.Duration `envconfig:"BAZAAR_MEDIA_SIGN_TIMEOUT" default:"2s"`
	// KeyPrefixes lists the top-level folders of the media bucket that may be signed.
	KeyPrefixes    []string      `envconfig:"BAZAAR_MEDIA_KEY_PREFIXES" default:"products,brands,categories"`
}

type PubSubConfig struct {
	DomainTopic                string `envconfig:"BAZAAR_PUBSUB_DOMAIN_TOPIC" default:"bazaar-domain-events"`
	NotificationSubscription   string `envconfig:"BAZAAR_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	NotificationMaxOutstanding int    `envconfig:"BAZAAR_PUBSUB_NOTIFICATION_MAX_OUTSTANDING" default:"10"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BAZAAR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BAZAAR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BAZAAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type SquareConfig struct {
	AccessToken string        `envconfig:"BAZAAR_SQUARE_ACCESS_TOKEN"`
	Env         string        `envconfig:"BAZAAR_SQUARE_ENV" default:"sandbox"`
	LocationID  string        `envconfig:"BAZAAR_SQUARE_LOCATION_ID"`
	Timeout     time.Duration `envconfig:"BAZAAR_SQUARE_TIMEOUT" default:"15s"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type SMTPConfig struct {
	Host     string        `envconfig:"BAZAAR_SMTP_HOST"`
	Port     int           `envconfig:"BAZAAR_SMTP_PORT" default:"587"`
	Username string        `envconfig:"BAZAAR_SMTP_USERNAME"`
	Password string        `envconfig:"BAZAAR_SMTP_PASSWORD"`
	From     string        `envconfig:"BAZAAR_SMTP_FROM" default:"no-reply@bazaar.local"`
	FromName string        `envconfig:"BAZAAR_SMTP_FROM_NAME" default:"Bazaar"`
	Timeout  time.Duration `envconfig:"BAZAAR_SMTP_TIMEOUT" default:"10s"`
}

// Addr returns the host:port pair for dialing the relay.
func (s SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type InvoiceConfig struct {
	ServiceURL  string        `envconfig:"BAZAAR_INVOICE_SERVICE_URL"`
	APIKey      string        `envconfig:"BAZAAR_INVOICE_API_KEY"`
	Timeout     time.Duration `envconfig:"BAZAAR_INVOICE_TIMEOUT" default:"20s"`
	DefaultTax  string        `envconfig:"BAZAAR_INVOICE_DEFAULT_TAX_RATE" default:"18"`
	StoragePath string        `envconfig:"BAZAAR_INVOICE_STORAGE_PREFIX" default:"invoices"`
}

type VerificationConfig struct {
	CodeTTL      time.Duration `envconfig:"BAZAAR_VERIFICATION_CODE_TTL" default:"10m"`
	HashMemoryKB int           `envconfig:"BAZAAR_VERIFICATION_HASH_MEMORY_KB" default:"19456"`
	HashTime     int           `envconfig:"BAZAAR_VERIFICATION_HASH_TIME" default:"2"`
	HashParallel int           `envconfig:"BAZAAR_VERIFICATION_HASH_PARALLELISM" default:"1"`
	HashSaltLen  int           `envconfig:"BAZAAR_VERIFICATION_HASH_SALT_LEN" default:"16"`
	HashKeyLen   int           `envconfig:"BAZAAR_VERIFICATION_HASH_KEY_LEN" default:"32"`
	LookupWindow int           `envconfig:"BAZAAR_VERIFICATION_LOOKUP_WINDOW" default:"5"`
}

type CronConfig struct {
	Interval                    time.Duration `envconfig:"BAZAAR_CRON_INTERVAL" default:"1h"`
	JobTimeout                  time.Duration `envconfig:"BAZAAR_CRON_JOB_TIMEOUT" default:"10m"`
	NotificationRetentionDays   int           `envconfig:"BAZAAR_CRON_NOTIFICATION_RETENTION_DAYS" default:"90"`
	OutboxRetentionDays         int           `envconfig:"BAZAAR_CRON_OUTBOX_RETENTION_DAYS" default:"7"`
	VerificationRetentionPeriod time.Duration `envconfig:"BAZAAR_CRON_VERIFICATION_RETENTION" default:"24h"`
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
