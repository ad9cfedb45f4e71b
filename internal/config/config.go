package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/oggyb/wa-notifier/internal/validation"
)

type Config struct {
	App struct {
		Name string `validate:"required"`
		Env  string `validate:"oneof=development staging production test"`
	}

	API struct {
		Host            string
		Port            string `validate:"required,numeric"`
		ShutdownTimeout time.Duration
		// WebhookRateLimit is requests per minute per client IP on /webhook/*.
		WebhookRateLimit int `validate:"gte=0"`
	}

	DB struct {
		Host     string
		Port     int `validate:"gt=0"`
		User     string
		Password string
		Name     string
		SSLMode  string

		MaxOpenConns    int `validate:"gte=0"`
		MaxIdleConns    int `validate:"gte=0"`
		ConnMaxLifetime time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int `validate:"gte=0"`
	}

	Gateway struct {
		BaseURL     string `validate:"omitempty,url"`
		APIKey      string
		SendTimeout time.Duration `validate:"gt=0"`
		// BreakerFailures opens a device's breaker after this many consecutive
		// transport failures. Zero disables the breaker.
		BreakerFailures    uint32
		BreakerOpenTimeout time.Duration
	}

	Dispatcher struct {
		Interval    time.Duration `validate:"gt=0"`
		BatchSize   int           `validate:"gt=0"`
		MaxWorkers  int           `validate:"gt=0"`
		BackoffBase time.Duration `validate:"gt=0"`
		BackoffMax  time.Duration `validate:"gtefield=BackoffBase"`
	}

	Scheduler struct {
		Interval     time.Duration `validate:"gt=0"`
		BatchTimeout time.Duration `validate:"gt=0"`
		BatchSize    int           `validate:"gt=0"`
		AutoStart    bool
	}

	Quota struct {
		SweepInterval        time.Duration `validate:"gt=0"`
		DeviceErrorThreshold int           `validate:"gt=0"`
	}

	Webhook struct {
		// Secret, when set, must match the X-Webhook-Secret header.
		Secret string
	}

	Defaults struct {
		CountryCode string `validate:"required,numeric"`
		Language    string `validate:"required"`
		SchoolName  string
		Timezone    string `validate:"required"`
		MaxRetries  int    `validate:"gte=0"`
	}

	Log struct {
		Level  string `validate:"oneof=debug info warn error"`
		Format string `validate:"oneof=json console"`
	}

	Storage struct {
		Driver string `validate:"oneof=postgres memory"`
	}

	Fixtures struct {
		Path string
	}
}

// New loads .env (if present) and the process environment, then validates.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// App
	cfg.App.Name = getEnv("APP_NAME", "wa-notifier")
	cfg.App.Env = getEnv("APP_ENV", "development")

	// API
	cfg.API.Host = getEnv("API_HOST", "0.0.0.0")
	cfg.API.Port = getEnv("API_PORT", "8080")
	cfg.API.ShutdownTimeout = getDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.API.WebhookRateLimit = getInt("WEBHOOK_RATE_LIMIT", 600)

	// DB
	cfg.DB.Host = getEnv("DB_HOST", "db")
	cfg.DB.Port = getInt("DB_PORT", 5432)
	cfg.DB.User = getEnv("DB_USER", "root")
	cfg.DB.Password = getEnv("DB_PASSWORD", "123456")
	cfg.DB.Name = getEnv("DB_NAME", "wa_notifier")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.DB.MaxOpenConns = getInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DB.MaxIdleConns = getInt("DB_MAX_IDLE_CONNS", 10)
	cfg.DB.ConnMaxLifetime = getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "redis:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getInt("REDIS_DB", 0)

	// Gateway
	cfg.Gateway.BaseURL = getEnv("GATEWAY_BASE_URL", "")
	cfg.Gateway.APIKey = getEnv("GATEWAY_API_KEY", "")
	cfg.Gateway.SendTimeout = getDuration("GATEWAY_SEND_TIMEOUT", 10*time.Second)
	cfg.Gateway.BreakerFailures = uint32(getInt("GATEWAY_BREAKER_FAILURES", 5))
	cfg.Gateway.BreakerOpenTimeout = getDuration("GATEWAY_BREAKER_OPEN_TIMEOUT", 30*time.Second)

	// Dispatcher
	cfg.Dispatcher.Interval = getDuration("DISPATCH_INTERVAL", 5*time.Second)
	cfg.Dispatcher.BatchSize = getInt("DISPATCH_BATCH_SIZE", 50)
	cfg.Dispatcher.MaxWorkers = getInt("DISPATCH_MAX_WORKERS", 8)
	cfg.Dispatcher.BackoffBase = getDuration("BACKOFF_BASE", 30*time.Second)
	cfg.Dispatcher.BackoffMax = getDuration("BACKOFF_MAX", 30*time.Minute)

	// Scheduler
	cfg.Scheduler.Interval = getDuration("SCHEDULER_INTERVAL", 30*time.Second)
	cfg.Scheduler.BatchTimeout = getDuration("SCHEDULER_BATCH_TIMEOUT", 30*time.Second)
	cfg.Scheduler.BatchSize = getInt("SCHEDULER_BATCH_SIZE", 100)
	cfg.Scheduler.AutoStart = getBool("SCHEDULER_AUTOSTART", true)

	// Quota
	cfg.Quota.SweepInterval = getDuration("QUOTA_SWEEP_INTERVAL", time.Minute)
	cfg.Quota.DeviceErrorThreshold = getInt("DEVICE_ERROR_THRESHOLD", 3)

	// Webhook
	cfg.Webhook.Secret = getEnv("WEBHOOK_SECRET", "")

	// Defaults
	cfg.Defaults.CountryCode = getEnv("DEFAULT_COUNTRY_CODE", "62")
	cfg.Defaults.Language = getEnv("DEFAULT_LANGUAGE", "en")
	cfg.Defaults.SchoolName = getEnv("SCHOOL_NAME", "")
	cfg.Defaults.Timezone = getEnv("TIMEZONE", "UTC")
	cfg.Defaults.MaxRetries = getInt("DEFAULT_MAX_RETRIES", 3)

	// Log
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", "json"))

	// Storage
	cfg.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", "postgres"))
	cfg.Fixtures.Path = getEnv("FIXTURES_PATH", "fixtures.yaml")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and that the timezone resolves.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location is the timezone used for business hours and template dates.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Defaults.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Defaults.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return isTruthy(v)
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.API.Host, c.API.Port)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}
