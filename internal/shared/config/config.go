package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the auction server, loaded from the environment
// (and from a .env file when present)
type Config struct {
	AppEnv   string
	HTTPAddr string

	DB             DBConfig
	MigrationsPath string
	StorageDriver  string // "postgres" or "memory"

	Redis RedisConfig
	// empty disables domain event publishing
	NatsURL string

	JWTSecret     string
	JWTExpiration time.Duration

	SessionTTL   time.Duration
	FanoutDriver string // "redis" or "local"
	BidTimeout   time.Duration
	Scheduler    SchedulerConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SchedulerConfig controls the room lifecycle cadence. Interval defaults to a daily run,
// aligned to midnight in Timezone.
type SchedulerConfig struct {
	Interval      time.Duration
	Timezone      string
	AlignMidnight bool
	RunOnStart    bool
}

// DSN builds the postgres connection url
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// Load reads the configuration, a missing .env file is not an error
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":9000"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "auction"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MigrationsPath: getEnv("MIGRATIONS_PATH", "internal/shared/db/migrations/sql"),
		StorageDriver:  getEnv("STORAGE_DRIVER", "postgres"),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		NatsURL:      os.Getenv("NATS_URL"),
		JWTSecret:    os.Getenv("JWT_ACCESS_TOKEN_SECRET"),
		FanoutDriver: getEnv("FANOUT_DRIVER", "redis"),
		Scheduler: SchedulerConfig{
			Timezone: getEnv("SCHEDULER_TIMEZONE", "Asia/Seoul"),
		},
	}

	var err error
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTExpiration, err = getDuration("JWT_ACCESS_TOKEN_EXPIRATION", time.Hour); err != nil {
		return nil, err
	}
	// SOCKET_SESSION_TTL is expressed in seconds
	ttl, err := getInt("SOCKET_SESSION_TTL", 1800)
	if err != nil {
		return nil, err
	}
	cfg.SessionTTL = time.Duration(ttl) * time.Second
	if cfg.BidTimeout, err = getDuration("BID_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Scheduler.Interval, err = getDuration("SCHEDULER_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Scheduler.AlignMidnight, err = getBool("SCHEDULER_ALIGN_MIDNIGHT", true); err != nil {
		return nil, err
	}
	if cfg.Scheduler.RunOnStart, err = getBool("SCHEDULER_RUN_ON_START", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_ACCESS_TOKEN_SECRET is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("config: SCHEDULER_INTERVAL must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SOCKET_SESSION_TTL must be positive")
	}
	switch c.StorageDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.FanoutDriver {
	case "redis", "local":
	default:
		return fmt.Errorf("config: unknown FANOUT_DRIVER %q", c.FanoutDriver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
