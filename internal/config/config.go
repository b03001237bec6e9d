package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Pricing  PricingConfig
	FX       FXConfig
	Sources  SourcesConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// PricingConfig holds price-resolver configuration: how many lookups run in
// parallel, how long confirmed quotes stay in the in-memory cache, and which
// cache version stored quotes must carry to be visible.
type PricingConfig struct {
	WorkerLimit     int
	CacheTTL        time.Duration
	CacheVersion    int
	ProviderTimeout time.Duration
	RefreshSchedule string // cron spec for the daily price refresh
}

// FXConfig holds currency normalization configuration.
type FXConfig struct {
	SettlementCurrency string
}

// SourcesConfig holds transaction-source configuration. FernetKey encrypts
// gateway credentials at rest.
type SourcesConfig struct {
	FernetKey string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/performance_engine.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost",
			},
		},
		Pricing: PricingConfig{
			WorkerLimit:     getEnvInt("PRICE_WORKER_LIMIT", 4),
			CacheTTL:        getEnvDuration("PRICE_CACHE_TTL", 6*time.Hour),
			CacheVersion:    getEnvInt("PRICE_CACHE_VERSION", 1),
			ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 20*time.Second),
			RefreshSchedule: getEnv("PRICE_REFRESH_SCHEDULE", "0 18 * * *"),
		},
		FX: FXConfig{
			SettlementCurrency: getEnv("SETTLEMENT_CURRENCY", "USD"),
		},
		Sources: SourcesConfig{
			FernetKey: getEnv("SOURCE_FERNET_KEY", ""),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvDuration gets a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
