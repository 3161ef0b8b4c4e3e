package config

const EnvPrefix = "PIXELMINT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverSQLite     = "sqlite"
	DefaultSQLiteDSN = "file:pixelmint-dev.db?_foreign_keys=on&_busy_timeout=5000"
)

const (
	EnvAppEnv    = "PIXELMINT_APP_ENV"
	EnvPort      = "PIXELMINT_APP_PORT"
	EnvDBDSN     = "PIXELMINT_DB_DSN"
	EnvDBHost    = "PIXELMINT_DB_HOST"
	EnvDBUser    = "PIXELMINT_DB_USER"
	EnvDBName    = "PIXELMINT_DB_NAME"
	EnvRedisURL  = "PIXELMINT_REDIS_URL"
	EnvJWTSecret = "PIXELMINT_JWT_SECRET"
	EnvJWTIssuer = "PIXELMINT_JWT_ISSUER"

	EnvGenerationTimeout4K = "PIXELMINT_GENERATION_TIMEOUT_4K"
	EnvGeminiAPIKey        = "PIXELMINT_GEMINI_API_KEY"
	EnvStripeProducts      = "PIXELMINT_STRIPE_PRODUCTS"
	EnvUseSQLite           = "PIXELMINT_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
