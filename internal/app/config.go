package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIRootURL   string // API root URL (default: https://api.box.com)
	ClientID     string // Required: OAuth2 client ID
	ClientSecret string // Required: OAuth2 client secret

	SubjectType string // Identity for the JWT grant (user, enterprise) (default: enterprise)
	SubjectID   string // Optional: enables the JWT grant when set with a key

	PrivateKeyPath  string        // Optional: path to PEM private key for app auth
	KeyID           string        // Optional: kid header for signed assertions
	KeyAlgorithm    string        // Assertion signing algorithm (RS256, ES256) (default: RS256)
	AssertionWindow time.Duration // Assertion exp window (default: 30s)

	StoreFile string // Optional: path to SQLite token store file
	StoreKey  string // Token store key (default: default)

	ExpiredBuffer time.Duration // Hard validity margin (default: 30s)
	StaleBuffer   time.Duration // Proactive refresh window (default: 10m)

	RetryMaxAttempts  int           // JWT grant attempt budget (default: 5)
	RetryBaseInterval time.Duration // JWT grant backoff base (default: 2s)

	TokenRateLimit float64 // Token endpoint requests per second, 0 disables (default: 0)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
}

func LoadConfig() Config {
	cfg := Config{
		APIRootURL:   getEnvOrDefault("BOX_API_ROOT", "https://api.box.com"),
		ClientID:     os.Getenv("BOX_CLIENT_ID"),
		ClientSecret: os.Getenv("BOX_CLIENT_SECRET"),

		SubjectType: getEnvOrDefault("BOX_SUBJECT_TYPE", "enterprise"),
		SubjectID:   os.Getenv("BOX_SUBJECT_ID"),

		PrivateKeyPath:  os.Getenv("BOX_PRIVATE_KEY_PATH"),
		KeyID:           os.Getenv("BOX_KEY_ID"),
		KeyAlgorithm:    getEnvOrDefault("BOX_KEY_ALGORITHM", "RS256"),
		AssertionWindow: getEnvDurationOrDefault("BOX_ASSERTION_WINDOW", 30*time.Second),

		StoreFile: os.Getenv("BOX_TOKEN_STORE_FILE"),
		StoreKey:  getEnvOrDefault("BOX_TOKEN_STORE_KEY", "default"),

		ExpiredBuffer: getEnvDurationOrDefault("BOX_EXPIRED_BUFFER", 30*time.Second),
		StaleBuffer:   getEnvDurationOrDefault("BOX_STALE_BUFFER", 10*time.Minute),

		RetryMaxAttempts:  getEnvIntOrDefault("BOX_RETRY_MAX_ATTEMPTS", 5),
		RetryBaseInterval: getEnvDurationOrDefault("BOX_RETRY_BASE_INTERVAL", 2*time.Second),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
	}

	if rateStr := os.Getenv("BOX_TOKEN_RATE_LIMIT"); rateStr != "" {
		if rps, err := strconv.ParseFloat(rateStr, 64); err == nil && rps > 0 {
			cfg.TokenRateLimit = rps
		}
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are treated as seconds.
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultValue
}
