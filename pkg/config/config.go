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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	RateLimit    RateLimitConfig
	Generation   GenerationConfig
	Providers    ProvidersConfig
	GCP          GCPConfig
	Storage      StorageConfig
	Stripe       StripeConfig
	Creem        CreemConfig
	Checkout     CheckoutConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = DefaultSQLiteDSN
		}
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PIXELMINT_APP_ENV" required:"true"`
	Port         string `envconfig:"PIXELMINT_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"PIXELMINT_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"PIXELMINT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PIXELMINT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PIXELMINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PIXELMINT_DB_DSN"`
	Driver string `envconfig:"PIXELMINT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PIXELMINT_DB_HOST"`
	LegacyPort     int    `envconfig:"PIXELMINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PIXELMINT_DB_USER"`
	LegacyPassword string `envconfig:"PIXELMINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"PIXELMINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"PIXELMINT_DB_SSLMODE" default:"disable"`

	SlowQueryThreshold time.Duration `envconfig:"PIXELMINT_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`

	MaxOpenConns    int           `envconfig:"PIXELMINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PIXELMINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PIXELMINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PIXELMINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PIXELMINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PIXELMINT_REDIS_ADDR"`
	Password     string        `envconfig:"PIXELMINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PIXELMINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PIXELMINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PIXELMINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PIXELMINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PIXELMINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PIXELMINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the session service.
type JWTConfig struct {
	Secret            string `envconfig:"PIXELMINT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PIXELMINT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PIXELMINT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite     bool `envconfig:"PIXELMINT_USE_SQLITE" default:"false"`
	AutoMigrate   bool `envconfig:"PIXELMINT_AUTO_MIGRATE" default:"false"`
	PersistImages bool `envconfig:"PIXELMINT_PERSIST_IMAGES" default:"true"`
}

type RateLimitConfig struct {
	GenerateWindow time.Duration `envconfig:"PIXELMINT_RATE_LIMIT_GENERATE_WINDOW" default:"1m"`
	GenerateLimit  int           `envconfig:"PIXELMINT_RATE_LIMIT_GENERATE_LIMIT" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"PIXELMINT_IDEMPOTENCY_TTL" default:"24h"`
}

// GenerationConfig holds the per-resolution upstream deadlines.
type GenerationConfig struct {
	Timeout1K   time.Duration `envconfig:"PIXELMINT_GENERATION_TIMEOUT_1K" default:"180s"`
	Timeout2K   time.Duration `envconfig:"PIXELMINT_GENERATION_TIMEOUT_2K" default:"300s"`
	Timeout4K   time.Duration `envconfig:"PIXELMINT_GENERATION_TIMEOUT_4K" default:"360s"`
	TextTimeout time.Duration `envconfig:"PIXELMINT_GENERATION_TIMEOUT_TEXT" default:"60s"`
}

// ProvidersConfig carries upstream credentials. Values are read once at boot
// and handed to the adapter registry.
type ProvidersConfig struct {
	GeminiAPIKey    string `envconfig:"PIXELMINT_GEMINI_API_KEY"`
	GeminiBaseURL   string `envconfig:"PIXELMINT_GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com"`
	OpenAIAPIKey    string `envconfig:"PIXELMINT_OPENAI_API_KEY"`
	OpenAIBaseURL   string `envconfig:"PIXELMINT_OPENAI_BASE_URL" default:"https://api.openai.com"`
	FluxAPIKey      string `envconfig:"PIXELMINT_FLUX_API_KEY"`
	FluxBaseURL     string `envconfig:"PIXELMINT_FLUX_BASE_URL" default:"https://api.openai.com"`
	SeedreamAPIKey  string `envconfig:"PIXELMINT_SEEDREAM_API_KEY"`
	SeedreamBaseURL string `envconfig:"PIXELMINT_SEEDREAM_BASE_URL" default:"https://ark.cn-beijing.volces.com"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PIXELMINT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PIXELMINT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PIXELMINT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type StorageConfig struct {
	BucketName    string `envconfig:"PIXELMINT_STORAGE_BUCKET"`
	PublicBaseURL string `envconfig:"PIXELMINT_STORAGE_PUBLIC_BASE_URL"`
}

type StripeConfig struct {
	APIKey string `envconfig:"PIXELMINT_STRIPE_API_KEY"`
	Secret string `envconfig:"PIXELMINT_STRIPE_SECRET"`
	Env    string `envconfig:"PIXELMINT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CreemConfig struct {
	APIKey        string `envconfig:"PIXELMINT_CREEM_API_KEY"`
	WebhookSecret string `envconfig:"PIXELMINT_CREEM_WEBHOOK_SECRET"`
	BaseURL       string `envconfig:"PIXELMINT_CREEM_BASE_URL" default:"https://api.creem.io"`
}

// CheckoutConfig maps catalog codes to provider product/price identifiers,
// e.g. PIXELMINT_STRIPE_PRODUCTS="pack_small:price_123,sub_basic:price_456".
type CheckoutConfig struct {
	StripeProducts map[string]string `envconfig:"PIXELMINT_STRIPE_PRODUCTS"`
	CreemProducts  map[string]string `envconfig:"PIXELMINT_CREEM_PRODUCTS"`
	SuccessPath    string            `envconfig:"PIXELMINT_CHECKOUT_SUCCESS_PATH" default:"/billing/success"`
	CancelPath     string            `envconfig:"PIXELMINT_CHECKOUT_CANCEL_PATH" default:"/billing/cancel"`
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
