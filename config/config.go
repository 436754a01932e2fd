package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"paperTrader/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Alpaca API
	APIKey      string
	SecretKey   string
	DataBaseURL string
	APIBaseURL  string
	StreamURL   string

	// Rate limiting
	RateLimitPerMinute int

	// Upstream retry
	MaxAttempts int
	RetryDelay  time.Duration

	// Price sync
	RefreshInterval  time.Duration
	DurableThreshold int
	MarketTimezone   string
	MarketMIC        string

	// Order execution
	RescanInterval time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Alpaca API
	cfg.APIKey = getEnv("ALPACA_API_KEY", "")
	cfg.SecretKey = getEnv("ALPACA_SECRET_KEY", "")
	if cfg.APIKey == "" {
		errs = append(errs, "ALPACA_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "ALPACA_SECRET_KEY must be set")
	}
	cfg.DataBaseURL = getEnv("ALPACA_DATA_URL", "https://data.alpaca.markets")
	cfg.APIBaseURL = getEnv("ALPACA_API_URL", "https://api.alpaca.markets")
	cfg.StreamURL = getEnv("ALPACA_STREAM_URL", "wss://stream.data.alpaca.markets/v2/sip")

	// Rate limiting
	cfg.RateLimitPerMinute, err = getEnvAsIntRequired("RATE_LIMIT_PER_MINUTE", 200)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RATE_LIMIT_PER_MINUTE: %v", err))
	} else if cfg.RateLimitPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must be positive")
	}

	// Upstream retry
	cfg.MaxAttempts, err = getEnvAsIntRequired("UPSTREAM_MAX_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid UPSTREAM_MAX_ATTEMPTS: %v", err))
	} else if cfg.MaxAttempts <= 0 {
		errs = append(errs, "UPSTREAM_MAX_ATTEMPTS must be positive")
	}
	cfg.RetryDelay = getEnvAsDuration("UPSTREAM_RETRY_DELAY", 2*time.Second)

	// Price sync
	cfg.RefreshInterval = getEnvAsDuration("PRICE_REFRESH_INTERVAL", 10*time.Minute)
	cfg.DurableThreshold = getEnvAsInt("DURABLE_PRICE_THRESHOLD", 10)
	cfg.MarketTimezone = getEnv("MARKET_TIMEZONE", "America/New_York")
	if _, tzErr := time.LoadLocation(cfg.MarketTimezone); tzErr != nil {
		errs = append(errs, fmt.Sprintf("invalid MARKET_TIMEZONE: %v", tzErr))
	}
	cfg.MarketMIC = getEnv("MARKET_MIC", "xnys")

	// Order execution
	cfg.RescanInterval = getEnvAsDuration("ORDER_RESCAN_INTERVAL", time.Minute)

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/paper_trader.db")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "info")
	cfg.LogLevel, err = logger.ParseLevel(logLevelStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOG_LEVEL '%s': %v", logLevelStr, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Helper Functions ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
