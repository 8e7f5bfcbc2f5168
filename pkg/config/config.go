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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Settlement   SettlementConfig
	Ledger       LedgerConfig
	Idempotency  IdempotencyConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPSPHERE_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPSPHERE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPSPHERE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPSPHERE_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated list of dashboard origins.
	CORSOrigins []string `envconfig:"SHOPSPHERE_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SHOPSPHERE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPSPHERE_DB_DSN"`
	Driver string `envconfig:"SHOPSPHERE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPSPHERE_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPSPHERE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPSPHERE_DB_USER"`
	LegacyPassword string `envconfig:"SHOPSPHERE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPSPHERE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPSPHERE_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"SHOPSPHERE_SQLITE_PATH" default:"file:shopsphere.db?_busy_timeout=5000"`

	MaxOpenConns    int           `envconfig:"SHOPSPHERE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPSPHERE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPSPHERE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPSPHERE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPSPHERE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPSPHERE_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPSPHERE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPSPHERE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPSPHERE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPSPHERE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPSPHERE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPSPHERE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPSPHERE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHOPSPHERE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPSPHERE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHOPSPHERE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHOPSPHERE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHOPSPHERE_AUTO_MIGRATE" default:"false"`
}

// SettlementConfig controls how compound purchase and cash-in operations are executed.
type SettlementConfig struct {
	Mode           string        `envconfig:"SHOPSPHERE_SETTLEMENT_MODE" default:"transactional"`
	StepRetries    uint64        `envconfig:"SHOPSPHERE_SETTLEMENT_STEP_RETRIES" default:"3"`
	StepRetryBase  time.Duration `envconfig:"SHOPSPHERE_SETTLEMENT_STEP_RETRY_BASE" default:"50ms"`
	PendingTimeout time.Duration `envconfig:"SHOPSPHERE_SETTLEMENT_PENDING_TIMEOUT" default:"5m"`
}

func (s SettlementConfig) IsSaga() bool {
	return strings.EqualFold(strings.TrimSpace(s.Mode), SettlementModeSaga)
}

func (s SettlementConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Mode)) {
	case SettlementModeTransactional, SettlementModeSaga:
		return nil
	default:
		return fmt.Errorf("%s must be one of %q or %q", EnvSettlementMode, SettlementModeTransactional, SettlementModeSaga)
	}
}

// LedgerConfig selects the per-vendor lock backend.
type LedgerConfig struct {
	LockBackend    string        `envconfig:"SHOPSPHERE_LEDGER_LOCK_BACKEND" default:"redis"`
	LockTTL        time.Duration `envconfig:"SHOPSPHERE_LEDGER_LOCK_TTL" default:"30s"`
	LockRetryEvery time.Duration `envconfig:"SHOPSPHERE_LEDGER_LOCK_RETRY_EVERY" default:"25ms"`
	LockMaxRetries int           `envconfig:"SHOPSPHERE_LEDGER_LOCK_MAX_RETRIES" default:"200"`
}

func (l LedgerConfig) UsesRedisLock() bool {
	return strings.EqualFold(strings.TrimSpace(l.LockBackend), LockBackendRedis)
}

func (l LedgerConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(l.LockBackend)) {
	case LockBackendRedis, LockBackendLocal:
	default:
		return fmt.Errorf("%s must be one of %q or %q", EnvLedgerLockBackend, LockBackendRedis, LockBackendLocal)
	}
	if l.LockTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerLockTTL)
	}
	return nil
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"SHOPSPHERE_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SHOPSPHERE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LedgerTopic        string `envconfig:"SHOPSPHERE_PUBSUB_LEDGER_TOPIC" default:"shopsphere-ledger-events"`
	LedgerSubscription string `envconfig:"SHOPSPHERE_PUBSUB_LEDGER_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHOPSPHERE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHOPSPHERE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHOPSPHERE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"SHOPSPHERE_CRON_INTERVAL" default:"1h"`
	OutboxRetention time.Duration `envconfig:"SHOPSPHERE_CRON_OUTBOX_RETENTION" default:"720h"`
	AuditBatchSize  int           `envconfig:"SHOPSPHERE_CRON_AUDIT_BATCH_SIZE" default:"100"`
	LockTTL         time.Duration `envconfig:"SHOPSPHERE_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
