package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted in DATABASE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds all configuration for the daemon
type Config struct {
	// Server
	Port     int
	Bind     string
	Debug    bool
	LogLevel string

	// Storage
	DatabaseDriver string
	DatabaseURL    string
	SQLitePath     string
	MongoURL       string
	MongoDatabase  string

	// Leaderboard index (optional)
	RedisURL string

	// Verdict queue (optional)
	RabbitMQURL  string
	QueueWorkers int

	// Streaks are computed on calendar days in this zone.
	StreakTimezone string
	Location       *time.Location

	// Per-client request rate limit; zero disables it.
	RateLimit int
	RateBurst int

	// Problem catalog seeded at startup when set.
	CatalogPath string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:           getEnvInt("PORT", 7432),
		Bind:           getEnv("BIND", "127.0.0.1"),
		Debug:          getEnvBool("DEBUG", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SQLitePath:     getEnv("SQLITE_PATH", defaultSQLitePath()),
		MongoURL:       getEnv("MONGODB_URL", ""),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "solvetrack"),
		RedisURL:       getEnv("REDIS_URL", ""),
		RabbitMQURL:    getEnv("RABBITMQ_URL", ""),
		QueueWorkers:   getEnvInt("QUEUE_WORKERS", 3),
		StreakTimezone: getEnv("STREAK_TIMEZONE", "UTC"),
		RateLimit:      getEnvInt("RATE_LIMIT", 50),
		RateBurst:      getEnvInt("RATE_BURST", 100),
		CatalogPath:    getEnv("CATALOG_PATH", ""),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver settings and resolves the streak time zone.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres driver")
		}
	case DriverMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGODB_URL must be set for the mongo driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.QueueWorkers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive")
	}

	loc, err := time.LoadLocation(c.StreakTimezone)
	if err != nil {
		return fmt.Errorf("invalid STREAK_TIMEZONE %q: %w", c.StreakTimezone, err)
	}
	c.Location = loc
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultSQLitePath() string {
	dir, err := SolvetrackDir()
	if err != nil {
		return "solvetrack.db"
	}
	return filepath.Join(dir, "solvetrack.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
