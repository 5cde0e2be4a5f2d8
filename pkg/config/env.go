package config

const (
	EnvPrefix = "BAZAAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "BAZAAR_APP_ENV"
	EnvPort     = "BAZAAR_APP_PORT"
	EnvLogLevel = "BAZAAR_LOG_LEVEL"

	EnvDBDSN  = "BAZAAR_DB_DSN"
	EnvDBHost = "BAZAAR_DB_HOST"
	EnvDBUser = "BAZAAR_DB_USER"
	EnvDBName = "BAZAAR_DB_NAME"

	EnvRedisURL = "BAZAAR_REDIS_URL"

	EnvAuthJWTSecret  = "BAZAAR_AUTH_JWT_SECRET"
	EnvAuthCookieName = "BAZAAR_AUTH_COOKIE_NAME"

	EnvGCPProjectID = "BAZAAR_GCP_PROJECT_ID"
	EnvGCSBucket    = "BAZAAR_GCS_BUCKET_NAME"

	EnvPubSubNotificationSubscription = "BAZAAR_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvInvoiceDefaultTax = "BAZAAR_INVOICE_DEFAULT_TAX_RATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
