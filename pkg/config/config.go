package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Circulation  CirculationConfig
	FeatureFlags FeatureFlagsConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Circulation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LIBRIS_APP_ENV" required:"true"`
	Port         string `envconfig:"LIBRIS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LIBRIS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LIBRIS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LIBRIS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LIBRIS_DB_DSN" required:"true"`
	Driver string `envconfig:"LIBRIS_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"LIBRIS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRIS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRIS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRIS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRIS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LIBRIS_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRIS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRIS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRIS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRIS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRIS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRIS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRIS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CirculationConfig carries the lending policy knobs. The fine rate is a
// policy value captured on each loan at issuance, never a hard-coded literal.
type CirculationConfig struct {
	FinePerDay           string `envconfig:"LIBRIS_FINE_PER_DAY" default:"100.00"`
	ClaimWindowHours     int    `envconfig:"LIBRIS_CLAIM_WINDOW_HOURS" default:"48"`
	LoanPeriodDays       int    `envconfig:"LIBRIS_LOAN_PERIOD_DAYS" default:"7"`
	MaxCopiesPerCheckout int    `envconfig:"LIBRIS_MAX_COPIES_PER_CHECKOUT" default:"5"`
	SweepIntervalMinutes int    `envconfig:"LIBRIS_SWEEP_INTERVAL_MINUTES" default:"60"`
}

func (c CirculationConfig) validate() error {
	if _, err := decimal.NewFromString(c.FinePerDay); err != nil {
		return fmt.Errorf("parsing LIBRIS_FINE_PER_DAY %q: %w", c.FinePerDay, err)
	}
	if c.ClaimWindowHours <= 0 {
		return fmt.Errorf("LIBRIS_CLAIM_WINDOW_HOURS must be positive")
	}
	if c.LoanPeriodDays <= 0 {
		return fmt.Errorf("LIBRIS_LOAN_PERIOD_DAYS must be positive")
	}
	if c.MaxCopiesPerCheckout <= 0 {
		return fmt.Errorf("LIBRIS_MAX_COPIES_PER_CHECKOUT must be positive")
	}
	return nil
}

// FineRate returns the configured per-day rate as a decimal.
func (c CirculationConfig) FineRate() decimal.Decimal {
	rate, err := decimal.NewFromString(c.FinePerDay)
	if err != nil {
		return decimal.Zero
	}
	return rate
}

// ClaimWindow returns how long a fulfilled reservation stays claimable.
func (c CirculationConfig) ClaimWindow() time.Duration {
	return time.Duration(c.ClaimWindowHours) * time.Hour
}

// SweepInterval returns the cadence of the cron worker cycles.
func (c CirculationConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LIBRIS_FEATURE_AUTO_MIGRATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"LIBRIS_OUTBOX_BATCH_SIZE" default:"100"`
	PollInterval time.Duration `envconfig:"LIBRIS_OUTBOX_POLL_INTERVAL" default:"5s"`
	MaxAttempts  int           `envconfig:"LIBRIS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}
