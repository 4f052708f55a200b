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
	App           AppConfig
	Service       ServiceConfig
	HTTP          HTTPConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Ledger        LedgerConfig
	PaymentConfig PaymentConfigConfig
	FeatureFlags  FeatureFlagsConfig
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
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARZ_APP_ENV" required:"true"`
	Port         string `envconfig:"CARZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARZ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARZ_SERVICE_KIND" default:"api"`
	// MetricsAddr is the listen address workers expose /metrics on. Empty disables it.
	MetricsAddr string `envconfig:"CARZ_METRICS_ADDR"`
}

type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"CARZ_CORS_ALLOWED_ORIGINS"`
	ReadHeaderTimeout  time.Duration `envconfig:"CARZ_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout    time.Duration `envconfig:"CARZ_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type DBConfig struct {
	DSN        string `envconfig:"CARZ_DB_DSN"`
	Driver     string `envconfig:"CARZ_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"CARZ_SQLITE_PATH" default:"carzavenue.db"`

	LegacyHost     string `envconfig:"CARZ_DB_HOST"`
	LegacyPort     int    `envconfig:"CARZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARZ_DB_USER"`
	LegacyPassword string `envconfig:"CARZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the local sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CARZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARZ_REDIS_ADDR"`
	Password     string        `envconfig:"CARZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only carries what bearer verification needs; tokens are minted by
// the identity service.
type JWTConfig struct {
	Secret string `envconfig:"CARZ_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"CARZ_JWT_ISSUER" required:"true"`
}

type LedgerConfig struct {
	DefaultCurrency      string          `envconfig:"CARZ_LEDGER_DEFAULT_CURRENCY" default:"USD"`
	PackageUnitPrice     decimal.Decimal `envconfig:"CARZ_LEDGER_PACKAGE_UNIT_PRICE" default:"1.00"`
	AllowNegativeBalance bool            `envconfig:"CARZ_LEDGER_ALLOW_NEGATIVE_BALANCE" default:"true"`
	LockRetries          int             `envconfig:"CARZ_LEDGER_LOCK_RETRIES" default:"3"`
	LockRetryBackoff     time.Duration   `envconfig:"CARZ_LEDGER_LOCK_RETRY_BACKOFF" default:"50ms"`
	LockTimeout          time.Duration   `envconfig:"CARZ_LEDGER_LOCK_TIMEOUT" default:"2s"`
}

func (l LedgerConfig) validate() error {
	if strings.TrimSpace(l.DefaultCurrency) == "" {
		return fmt.Errorf("%s must not be blank", EnvLedgerDefaultCurrency)
	}
	if !l.PackageUnitPrice.IsPositive() {
		return fmt.Errorf("%s must be positive", EnvLedgerPackageUnitPrice)
	}
	if l.LockRetries < 0 {
		return fmt.Errorf("%s must not be negative", EnvLedgerLockRetries)
	}
	return nil
}

type PaymentConfigConfig struct {
	CacheTTL time.Duration `envconfig:"CARZ_PAYMENT_CONFIG_CACHE_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CARZ_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CARZ_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CARZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CARZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic string `envconfig:"CARZ_PUBSUB_LEDGER_TOPIC" default:"carz-ledger-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CARZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CARZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CARZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CARZ_OUTBOX_RETENTION" default:"720h"`
}

// PollInterval converts the millisecond setting into a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type CronConfig struct {
	ReconcileInterval time.Duration `envconfig:"CARZ_CRON_RECONCILE_INTERVAL" default:"1h"`
	LockTTL           time.Duration `envconfig:"CARZ_CRON_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
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
