package config

const (
	EnvPrefix = "SHOPSPHERE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	SettlementModeTransactional = "transactional"
	SettlementModeSaga          = "saga"

	LockBackendRedis = "redis"
	LockBackendLocal = "local"
)

const (
	EnvAppEnv   = "SHOPSPHERE_APP_ENV"
	EnvPort     = "SHOPSPHERE_APP_PORT"
	EnvLogLevel = "SHOPSPHERE_LOG_LEVEL"

	EnvDBDSN  = "SHOPSPHERE_DB_DSN"
	EnvDBHost = "SHOPSPHERE_DB_HOST"
	EnvDBUser = "SHOPSPHERE_DB_USER"
	EnvDBName = "SHOPSPHERE_DB_NAME"

	EnvUseSQLite = "SHOPSPHERE_USE_SQLITE"

	EnvRedisURL = "SHOPSPHERE_REDIS_URL"

	EnvJWTSecret = "SHOPSPHERE_JWT_SECRET"
	EnvJWTIssuer = "SHOPSPHERE_JWT_ISSUER"

	EnvSettlementMode    = "SHOPSPHERE_SETTLEMENT_MODE"
	EnvLedgerLockBackend = "SHOPSPHERE_LEDGER_LOCK_BACKEND"
	EnvLedgerLockTTL     = "SHOPSPHERE_LEDGER_LOCK_TTL"

	EnvGCPProjectID = "SHOPSPHERE_GCP_PROJECT_ID"
	EnvLedgerTopic  = "SHOPSPHERE_PUBSUB_LEDGER_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
