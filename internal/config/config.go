package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/oejp/kraken-bridge/internal/kraken"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Upstream API
	Email       string
	Password    string
	APIURL      string
	HTTPTimeout time.Duration

	// Refresh cycle
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Email:       getEnv("OEJP_EMAIL", ""),
		Password:    getEnv("OEJP_PASSWORD", ""),
		APIURL:      getEnv("OEJP_API_URL", kraken.DefaultEndpointURL),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 30*time.Minute),
		RefreshTimeout:  getEnvDuration("REFRESH_TIMEOUT", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

// Validate checks that the credentials required to reach the upstream API
// are present.
func (c *Config) Validate() error {
	if c.Email == "" {
		return errors.New("OEJP_EMAIL is required")
	}
	if c.Password == "" {
		return errors.New("OEJP_PASSWORD is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
