// Package config provides configuration management for LODO.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment
// variables.
type ServerConfig struct {
	Environment Environment
	ListenAddr  string
	DatabaseURL string

	// RedisURL enables the shared token store and rate limiter. Empty
	// falls back to in-process equivalents.
	RedisURL string

	// AdminToken is the static bootstrap token. Empty disables it.
	AdminToken string

	CORSOrigins       []string
	RateLimitRequests int64
	RateLimitPeriod   string

	LogLevel  string
	LogFormat string // "json" or "console"

	// Geocoding
	NominatimURL     string
	GeocodeCachePath string
	GeocodeBackfill  bool
	GeocodeCron      string

	// Logo storage (S3-compatible). Empty bucket disables uploads.
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PublicURL string

	HealthSystemInfo bool
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() (ServerConfig, error) {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return ServerConfig{}, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := ServerConfig{
		Environment:       env,
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:       databaseURL,
		RedisURL:          os.Getenv("REDIS_URL"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		CORSOrigins:       splitList(os.Getenv("CORS_ORIGINS")),
		RateLimitRequests: int64(getEnvInt("RATE_LIMIT_REQUESTS", 100)),
		RateLimitPeriod:   getEnv("RATE_LIMIT_PERIOD", "1m"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		NominatimURL:      getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		GeocodeCachePath:  getEnv("GEOCODE_CACHE_PATH", "geocode-cache.db"),
		GeocodeBackfill:   getEnvBool("GEOCODE_BACKFILL", false),
		GeocodeCron:       getEnv("GEOCODE_BACKFILL_CRON", "@every 1h"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3PublicURL:       os.Getenv("S3_PUBLIC_URL"),
		HealthSystemInfo:  getEnvBool("HEALTH_SYSTEM_INFO", true),
	}

	if cfg.RateLimitRequests < 1 {
		cfg.RateLimitRequests = 100
	}

	return cfg, nil
}

// splitList parses a comma-separated list, dropping empty entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv reads a string from an environment variable, returning the default
// if unset.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the
// default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the
// default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
