package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "CARHIVE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "CARHIVE_APP_ENV"
	EnvPort      = "CARHIVE_APP_PORT"
	EnvDBDSN     = "CARHIVE_DB_DSN"
	EnvDBHost    = "CARHIVE_DB_HOST"
	EnvDBUser    = "CARHIVE_DB_USER"
	EnvDBName    = "CARHIVE_DB_NAME"
	EnvRedisURL  = "CARHIVE_REDIS_URL"
	EnvJWTSecret = "CARHIVE_JWT_SECRET"
	EnvJWTIssuer = "CARHIVE_JWT_ISSUER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Stripe       StripeConfig
	Payments     PaymentsConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"CARHIVE_APP_ENV" required:"true"`
	Port         string `envconfig:"CARHIVE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARHIVE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARHIVE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CARHIVE_DB_DSN"`
	Driver string `envconfig:"CARHIVE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARHIVE_DB_HOST"`
	LegacyPort     int    `envconfig:"CARHIVE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARHIVE_DB_USER"`
	LegacyPassword string `envconfig:"CARHIVE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARHIVE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARHIVE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARHIVE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARHIVE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARHIVE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARHIVE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARHIVE_REDIS_URL" required:"true"`
	Password     string        `envconfig:"CARHIVE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARHIVE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARHIVE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARHIVE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARHIVE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARHIVE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARHIVE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CARHIVE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CARHIVE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CARHIVE_JWT_EXPIRATION_MINUTES" default:"60"`
}

func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CARHIVE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CARHIVE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CARHIVE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CARHIVE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CARHIVE_ARGON_KEY_LEN" default:"32"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"CARHIVE_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"CARHIVE_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"CARHIVE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	Currency         string        `envconfig:"CARHIVE_PAYMENTS_CURRENCY" default:"usd"`
	ProcessorTimeout time.Duration `envconfig:"CARHIVE_PAYMENTS_PROCESSOR_TIMEOUT" default:"10s"`
	WebhookEventTTL  time.Duration `envconfig:"CARHIVE_PAYMENTS_WEBHOOK_EVENT_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CARHIVE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CARHIVE_AUTO_MIGRATE" default:"false"`
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
