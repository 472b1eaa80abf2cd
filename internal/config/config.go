package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	// APIVersion is the storage API version segment the server accepts.
	// Path versions are compared as floats, so "1.1" also matches "1.10".
	APIVersion string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Port:       getEnv("PORT", "8080"),
		Env:        getEnv("ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		APIVersion: getEnv("SYNC_API_VERSION", "1.1"),
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SlogLevel maps the configured log level onto slog's levels, defaulting to
// Info for unknown values.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
