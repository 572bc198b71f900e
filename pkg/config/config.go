package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	Payout   PayoutConfig
	Provider ProviderConfig
	GCP      GCPConfig
	Alerts   AlertsConfig
	Flags    FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payout.parseRate(); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if cfg.Payout.rate.IsNegative() || cfg.Payout.rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate %s must be a fraction in [0, 1)", cfg.Payout.rate)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"VENDORPAYOUTS_APP_ENV" required:"true"`
	Port         string `envconfig:"VENDORPAYOUTS_APP_PORT" default:"8090"`
	LogLevel     string `envconfig:"VENDORPAYOUTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VENDORPAYOUTS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VENDORPAYOUTS_SERVICE_KIND" default:"payout-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"VENDORPAYOUTS_DB_DSN"`
	Driver string `envconfig:"VENDORPAYOUTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VENDORPAYOUTS_DB_HOST"`
	LegacyPort     int    `envconfig:"VENDORPAYOUTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VENDORPAYOUTS_DB_USER"`
	LegacyPassword string `envconfig:"VENDORPAYOUTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"VENDORPAYOUTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"VENDORPAYOUTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENDORPAYOUTS_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"VENDORPAYOUTS_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"VENDORPAYOUTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENDORPAYOUTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VENDORPAYOUTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VENDORPAYOUTS_REDIS_ADDR"`
	Password     string        `envconfig:"VENDORPAYOUTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENDORPAYOUTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENDORPAYOUTS_REDIS_POOL_SIZE" default:"5"`
	MinIdleConns int           `envconfig:"VENDORPAYOUTS_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"VENDORPAYOUTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENDORPAYOUTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENDORPAYOUTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PayoutConfig holds the knobs for the payout cycle itself. The commission
// rate is parsed once at load and never mutated afterwards.
type PayoutConfig struct {
	CommissionRate string        `envconfig:"VENDORPAYOUTS_COMMISSION_RATE" default:"0.10"`
	Currency       string        `envconfig:"VENDORPAYOUTS_CURRENCY" default:"USD" validate:"len=3"`
	Interval       time.Duration `envconfig:"VENDORPAYOUTS_RUN_INTERVAL" default:"24h" validate:"gt=0"`
	DryRun         bool          `envconfig:"VENDORPAYOUTS_DRY_RUN" default:"false"`

	rate decimal.Decimal
}

func (p *PayoutConfig) parseRate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.CommissionRate))
	if err != nil {
		return fmt.Errorf("parsing commission rate %q: %w", p.CommissionRate, err)
	}
	p.rate = rate
	return nil
}

// Rate returns the parsed default commission rate fraction.
func (p PayoutConfig) Rate() decimal.Decimal {
	return p.rate
}

type ProviderConfig struct {
	BaseURL      string        `envconfig:"VENDORPAYOUTS_PROVIDER_BASE_URL"`
	Env          string        `envconfig:"VENDORPAYOUTS_PROVIDER_ENV" default:"sandbox"`
	ClientID     string        `envconfig:"VENDORPAYOUTS_PROVIDER_CLIENT_ID" required:"true"`
	ClientSecret string        `envconfig:"VENDORPAYOUTS_PROVIDER_CLIENT_SECRET" required:"true"`
	Timeout      time.Duration `envconfig:"VENDORPAYOUTS_PROVIDER_TIMEOUT" default:"30s" validate:"gt=0"`
}

// Environment returns the normalized provider environment (sandbox/production).
func (p ProviderConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VENDORPAYOUTS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"VENDORPAYOUTS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VENDORPAYOUTS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type AlertsConfig struct {
	Topic string `envconfig:"VENDORPAYOUTS_ALERTS_TOPIC"`
}

// Enabled reports whether operator alerts should be published.
func (a AlertsConfig) Enabled() bool {
	return strings.TrimSpace(a.Topic) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VENDORPAYOUTS_AUTO_MIGRATE" default:"false"`
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
