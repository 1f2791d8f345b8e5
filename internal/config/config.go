package config

import (
	"fmt"  // Error wrapping
	"time" // Durations

	"github.com/caarlos0/env/v11" // Struct tag environment parsing
	"github.com/joho/godotenv"    // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort    string `env:"APP_PORT" envDefault:"8080"`             // Application port
	DBUser     string `env:"DB_USER"`                                // Database user
	DBPassword string `env:"DB_PASSWORD"`                            // Database password
	DBHost     string `env:"DB_HOST" envDefault:"127.0.0.1"`         // Database host
	DBPort     string `env:"DB_PORT" envDefault:"3306"`              // Database port
	DBName     string `env:"DB_NAME"`                                // Database name
	JWTSecret  string `env:"JWT_SECRET"`                             // JWT secret key
	RedisAddr  string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"` // Redis server address
	RedisPass  string `env:"REDIS_PASS"`                             // Redis password
	RedisDB    int    `env:"REDIS_DB" envDefault:"0"`                // Redis database number
	IsProd     bool   `env:"IS_PROD" envDefault:"false"`             // Is production environment

	MaxCashOwed   int64 `env:"MAX_CASH_OWED" envDefault:"50000"` // Cash debt ceiling in centavos (500 MXN)
	DebtWarnDays  int   `env:"DEBT_WARN_DAYS" envDefault:"5"`    // Days pending before a driver is warned
	DebtBlockDays int   `env:"DEBT_BLOCK_DAYS" envDefault:"7"`   // Days pending after which a driver is blocked

	RateCacheTTL time.Duration `env:"RATE_CACHE_TTL" envDefault:"5m"` // Commission rate cache lifetime

	AuditSchedule      string `env:"AUDIT_SCHEDULE" envDefault:"0 3 * * *"`    // Cron spec for the full audit
	DebtSweepSchedule  string `env:"DEBT_SWEEP_SCHEDULE" envDefault:"@hourly"` // Cron spec for the overdue debt sweep
	AuditSampleLimit   int    `env:"AUDIT_SAMPLE_LIMIT" envDefault:"10"`       // Affected ids kept per finding
	AuditRatePerMinute int    `env:"AUDIT_RATE_PER_MINUTE" envDefault:"6"`     // On-demand audits allowed per minute
}

// LoadConfig loads configuration from a .env file (if present) and environment variables
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err) // Malformed value in the environment
	}
	if cfg.MaxCashOwed <= 0 {
		return nil, fmt.Errorf("MAX_CASH_OWED must be positive, got %d", cfg.MaxCashOwed)
	}
	if cfg.DebtWarnDays <= 0 || cfg.DebtBlockDays < cfg.DebtWarnDays {
		return nil, fmt.Errorf("debt policy days invalid: warn=%d block=%d", cfg.DebtWarnDays, cfg.DebtBlockDays)
	}
	return &cfg, nil
}

// DSN builds the MySQL Data Source Name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&loc=UTC"
}
