// Package config loads engine configuration from config.json with
// environment variable overrides. Environment always wins so deployments
// can be tuned without editing the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration for the analytics engine.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Auth      AuthConfig      `json:"auth"`
	Analytics AnalyticsConfig `json:"analytics"`
	EOD       EODConfig       `json:"eod"`
	Logging   LoggingConfig   `json:"logging"`
	Notify    NotifyConfig    `json:"notify"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	RateLimitPerMin int           `json:"rate_limit_per_min"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	User         string        `json:"user"`
	Password     string        `json:"password"`
	Database     string        `json:"database"`
	SSLMode      string        `json:"ssl_mode"`
	MaxConns     int           `json:"max_conns"`
	MinConns     int           `json:"min_conns"`
	QueryTimeout time.Duration `json:"query_timeout"`
}

// DSN builds the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// RedisConfig holds the cache/live-metrics connection settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

// AuthConfig holds JWT settings. When Enabled is false the API falls back
// to the X-Business-ID header, which is only acceptable for development.
type AuthConfig struct {
	Enabled     bool          `json:"enabled"`
	JWTSecret   string        `json:"jwt_secret"`
	TokenExpiry time.Duration `json:"token_expiry"`
}

// AnalyticsConfig tunes the classification and forecasting engines.
type AnalyticsConfig struct {
	ForecastHorizonDays  int           `json:"forecast_horizon_days"`
	ForecastMinDays      int           `json:"forecast_min_days"`
	TrendThresholdPct    float64       `json:"trend_threshold_pct"`
	RFMWindowDays        int           `json:"rfm_window_days"`
	VelocityWindowDays   int           `json:"velocity_window_days"`
	QueryTimeout         time.Duration `json:"query_timeout"`
	CacheWarmConcurrency int           `json:"cache_warm_concurrency"`
}

// EODConfig tunes the end-of-day report builder and its scheduler.
type EODConfig struct {
	StepTimeout            time.Duration `json:"step_timeout"`
	BuildTimeout           time.Duration `json:"build_timeout"`
	CheckInterval          time.Duration `json:"check_interval"`
	MaxConcurrent          int           `json:"max_concurrent"`
	DiscrepancyThreshold   float64       `json:"discrepancy_threshold"`
	VarianceErrorThreshold float64       `json:"variance_error_threshold"`
	StaleAge               time.Duration `json:"stale_age"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

// NotifyConfig controls end-of-day completion notifications.
type NotifyConfig struct {
	Enabled     bool          `json:"enabled"`
	QueueKey    string        `json:"queue_key"`
	DedupeTTL   time.Duration `json:"dedupe_ttl"`
	RetryDelay  time.Duration `json:"retry_delay"`
	MaxAttempts int           `json:"max_attempts"`
	SMTP        SMTPConfig    `json:"smtp"`
}

// SMTPConfig configures email delivery. Notifications fall back to log
// output when Host, From or Recipient is empty.
type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	From      string `json:"from"`
	FromName  string `json:"from_name"`
	Recipient string `json:"recipient"`
}

// Default returns the built-in configuration used when no config.json exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitPerMin: 120,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "pos",
			Password:     "pos",
			Database:     "pos_analytics",
			SSLMode:      "disable",
			MaxConns:     10,
			MinConns:     2,
			QueryTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			DB:      0,
			Enabled: true,
		},
		Auth: AuthConfig{
			Enabled:     false,
			JWTSecret:   "change-me-in-production",
			TokenExpiry: 24 * time.Hour,
		},
		Analytics: AnalyticsConfig{
			ForecastHorizonDays:  14,
			ForecastMinDays:      14,
			TrendThresholdPct:    2.0,
			RFMWindowDays:        365,
			VelocityWindowDays:   30,
			QueryTimeout:         10 * time.Second,
			CacheWarmConcurrency: 4,
		},
		EOD: EODConfig{
			StepTimeout:            30 * time.Second,
			BuildTimeout:           3 * time.Minute,
			CheckInterval:          time.Minute,
			MaxConcurrent:          5,
			DiscrepancyThreshold:   10.0,
			VarianceErrorThreshold: 50.0,
			StaleAge:               15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		Notify: NotifyConfig{
			Enabled:     true,
			QueueKey:    "notify:eod:queue",
			DedupeTTL:   24 * time.Hour,
			RetryDelay:  30 * time.Second,
			MaxAttempts: 3,
			SMTP: SMTPConfig{
				Port:     587,
				FromName: "POS Analytics",
			},
		},
	}
}

// Load reads config.json (if present) over the defaults, then applies
// environment overrides. A .env file is loaded first when one exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvIntOrDefault("SERVER_PORT", c.Server.Port)
	c.Server.RateLimitPerMin = getEnvIntOrDefault("SERVER_RATE_LIMIT_PER_MIN", c.Server.RateLimitPerMin)

	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvIntOrDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnvOrDefault("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.QueryTimeout = getEnvDurationOrDefault("DB_QUERY_TIMEOUT", c.Database.QueryTimeout)

	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvIntOrDefault("REDIS_DB", c.Redis.DB)
	c.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", c.Redis.Enabled)

	c.Auth.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", c.Auth.JWTSecret)

	c.Analytics.ForecastHorizonDays = getEnvIntOrDefault("FORECAST_HORIZON_DAYS", c.Analytics.ForecastHorizonDays)
	c.Analytics.ForecastMinDays = getEnvIntOrDefault("FORECAST_MIN_DAYS", c.Analytics.ForecastMinDays)
	c.Analytics.TrendThresholdPct = getEnvFloatOrDefault("TREND_THRESHOLD_PCT", c.Analytics.TrendThresholdPct)
	c.Analytics.QueryTimeout = getEnvDurationOrDefault("ANALYTICS_QUERY_TIMEOUT", c.Analytics.QueryTimeout)
	c.Analytics.CacheWarmConcurrency = getEnvIntOrDefault("CACHE_WARM_CONCURRENCY", c.Analytics.CacheWarmConcurrency)

	c.EOD.StepTimeout = getEnvDurationOrDefault("EOD_STEP_TIMEOUT", c.EOD.StepTimeout)
	c.EOD.CheckInterval = getEnvDurationOrDefault("EOD_CHECK_INTERVAL", c.EOD.CheckInterval)
	c.EOD.MaxConcurrent = getEnvIntOrDefault("EOD_MAX_CONCURRENT", c.EOD.MaxConcurrent)
	c.EOD.DiscrepancyThreshold = getEnvFloatOrDefault("EOD_DISCREPANCY_THRESHOLD", c.EOD.DiscrepancyThreshold)
	c.EOD.VarianceErrorThreshold = getEnvFloatOrDefault("EOD_VARIANCE_ERROR_THRESHOLD", c.EOD.VarianceErrorThreshold)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Output = getEnvOrDefault("LOG_OUTPUT", c.Logging.Output)

	c.Notify.Enabled = getEnvBoolOrDefault("NOTIFY_ENABLED", c.Notify.Enabled)
	c.Notify.SMTP.Host = getEnvOrDefault("SMTP_HOST", c.Notify.SMTP.Host)
	c.Notify.SMTP.Port = getEnvIntOrDefault("SMTP_PORT", c.Notify.SMTP.Port)
	c.Notify.SMTP.Username = getEnvOrDefault("SMTP_USERNAME", c.Notify.SMTP.Username)
	c.Notify.SMTP.Password = getEnvOrDefault("SMTP_PASSWORD", c.Notify.SMTP.Password)
	c.Notify.SMTP.From = getEnvOrDefault("SMTP_FROM", c.Notify.SMTP.From)
	c.Notify.SMTP.Recipient = getEnvOrDefault("SMTP_RECIPIENT", c.Notify.SMTP.Recipient)
}

// Validate rejects configurations that cannot possibly run.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but JWT_SECRET is empty")
	}
	if c.EOD.MaxConcurrent < 1 {
		return fmt.Errorf("eod max_concurrent must be at least 1")
	}
	if c.EOD.VarianceErrorThreshold < c.EOD.DiscrepancyThreshold {
		return fmt.Errorf("variance error threshold must not be below discrepancy threshold")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
