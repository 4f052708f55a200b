package config

const (
	// EnvPrefix is handed to envconfig; every field below still declares its
	// full variable name so lookups never depend on field naming.
	EnvPrefix = "CARZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "CARZ_APP_ENV"
	EnvPort     = "CARZ_APP_PORT"
	EnvLogLevel = "CARZ_LOG_LEVEL"

	EnvCORSAllowedOrigins = "CARZ_CORS_ALLOWED_ORIGINS"

	EnvDBDSN      = "CARZ_DB_DSN"
	EnvDBDriver   = "CARZ_DB_DRIVER"
	EnvDBHost     = "CARZ_DB_HOST"
	EnvDBUser     = "CARZ_DB_USER"
	EnvDBName     = "CARZ_DB_NAME"
	EnvSQLitePath = "CARZ_SQLITE_PATH"

	EnvRedisURL = "CARZ_REDIS_URL"

	EnvJWTSecret = "CARZ_JWT_SECRET"
	EnvJWTIssuer = "CARZ_JWT_ISSUER"

	EnvLedgerDefaultCurrency      = "CARZ_LEDGER_DEFAULT_CURRENCY"
	EnvLedgerPackageUnitPrice     = "CARZ_LEDGER_PACKAGE_UNIT_PRICE"
	EnvLedgerAllowNegativeBalance = "CARZ_LEDGER_ALLOW_NEGATIVE_BALANCE"
	EnvLedgerLockRetries          = "CARZ_LEDGER_LOCK_RETRIES"
	EnvLedgerLockRetryBackoff     = "CARZ_LEDGER_LOCK_RETRY_BACKOFF"
	EnvLedgerLockTimeout          = "CARZ_LEDGER_LOCK_TIMEOUT"

	EnvPaymentConfigCacheTTL = "CARZ_PAYMENT_CONFIG_CACHE_TTL"

	EnvGCPProjectID       = "CARZ_GCP_PROJECT_ID"
	EnvPubSubLedgerTopic  = "CARZ_PUBSUB_LEDGER_TOPIC"
	EnvCronReconcileEvery = "CARZ_CRON_RECONCILE_INTERVAL"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
