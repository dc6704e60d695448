package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configurations
// All sensitive values are loaded from .env
type Config struct {
	// Server Configuration
	Environment string
	ServerPort  string

	// Public origins
	BaseURL         string // API origin, used in health and docs
	RedirectBaseURL string // Origin short links are composed against

	// Backing stores
	DBURL    string // Postgres DSN
	CacheURL string // Redis URL (redis://...)
	QueueURL string // AMQP URL for the click-event queue; empty disables publishing

	// Short code allocation
	ShortCodeLength      int
	ShortCodeMaxAttempts int
	ReservedWords        []string // extends the built-in reserved set

	// Cache TTLs
	PosCacheTTL       time.Duration // L2 TTL for found mappings
	NegCacheTTL       time.Duration // L2 TTL for the negative sentinel
	L1CacheTTL        time.Duration // process-local TTL
	L1CacheMaxEntries int64

	// Expiry policy
	AnonMaxTTLDays int // hard cap for anonymous mappings
	UserMaxTTLDays int // hard cap for authenticated users

	// Webhooks
	WebhookTimeout     time.Duration
	WebhookMaxRetries  int
	WebhookQueueSize   int
	WebhookWorkers     int
	WebhookClickSample int // deliver 1 in N click events when enabled

	// Auth
	AuthJWTSecret string

	// HTTP behavior
	RateLimitPerMinute int
	RedirectStatus     int // 301 or 302

	// Background sweeper
	SweepInterval        time.Duration
	DeletedRetentionDays int
}

// LoadConfig loads configuration from environment variables
// Returns error if required environment variables are missing
func LoadConfig() (*Config, error) {
	cfg := &Config{
		// Server defaults
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "8081"),

		BaseURL:         getEnv("BASE_URL", "http://localhost:8081"),
		RedirectBaseURL: getEnv("REDIRECT_BASE_URL", ""),

		DBURL:    getEnv("DB_URL", "host=localhost user=postgres dbname=linkforge port=5432 sslmode=disable TimeZone=UTC"),
		CacheURL: getEnv("CACHE_URL", "redis://localhost:6379/0"),
		QueueURL: getEnv("QUEUE_URL", ""),

		ShortCodeLength:      getEnvAsInt("SHORT_CODE_LENGTH", 7),
		ShortCodeMaxAttempts: getEnvAsInt("SHORT_CODE_MAX_ATTEMPTS", 8),
		ReservedWords:        getEnvAsSlice("RESERVED_WORDS"),

		PosCacheTTL:       time.Duration(getEnvAsInt("POS_CACHE_TTL_SECONDS", 3600)) * time.Second,
		NegCacheTTL:       time.Duration(getEnvAsInt("NEG_CACHE_TTL_SECONDS", 60)) * time.Second,
		L1CacheTTL:        time.Duration(getEnvAsInt("L1_CACHE_TTL_SECONDS", 30)) * time.Second,
		L1CacheMaxEntries: int64(getEnvAsInt("L1_CACHE_MAX_ENTRIES", 10000)),

		AnonMaxTTLDays: getEnvAsInt("ANONYMOUS_MAX_TTL_DAYS", 7),
		UserMaxTTLDays: getEnvAsInt("USER_MAX_TTL_DAYS", 365),

		WebhookTimeout:     time.Duration(getEnvAsInt("WEBHOOK_TIMEOUT_MS", 10000)) * time.Millisecond,
		WebhookMaxRetries:  getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookQueueSize:   getEnvAsInt("WEBHOOK_QUEUE_SIZE", 256),
		WebhookWorkers:     getEnvAsInt("WEBHOOK_WORKERS", 4),
		WebhookClickSample: getEnvAsInt("WEBHOOK_CLICK_SAMPLE", 100),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		RedirectStatus:     getEnvAsInt("REDIRECT_STATUS", 302),

		SweepInterval:        time.Duration(getEnvAsInt("SWEEP_INTERVAL_MINUTES", 10)) * time.Minute,
		DeletedRetentionDays: getEnvAsInt("DELETED_RETENTION_DAYS", 30),
	}

	// Short links live on the redirect origin; default to the API origin
	if cfg.RedirectBaseURL == "" {
		cfg.RedirectBaseURL = cfg.BaseURL
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration is present and valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}

	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}

	// Validate short code length (must be between 4 and 12)
	if c.ShortCodeLength < 4 || c.ShortCodeLength > 12 {
		return fmt.Errorf("SHORT_CODE_LENGTH must be between 4 and 12, got %d", c.ShortCodeLength)
	}

	if c.ShortCodeMaxAttempts < 1 {
		return fmt.Errorf("SHORT_CODE_MAX_ATTEMPTS must be at least 1, got %d", c.ShortCodeMaxAttempts)
	}

	if c.RedirectStatus != 301 && c.RedirectStatus != 302 {
		return fmt.Errorf("REDIRECT_STATUS must be 301 or 302, got %d", c.RedirectStatus)
	}

	if c.AnonMaxTTLDays < 1 || c.UserMaxTTLDays < c.AnonMaxTTLDays {
		return fmt.Errorf("TTL caps are inconsistent: anonymous %d days, user %d days", c.AnonMaxTTLDays, c.UserMaxTTLDays)
	}

	// Bearer auth needs signing material once deployed for real
	if c.Environment == "production" && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}

	if c.WebhookQueueSize < 1 {
		return fmt.Errorf("WEBHOOK_QUEUE_SIZE must be positive, got %d", c.WebhookQueueSize)
	}

	return nil
}

// ShortLinkBase returns the origin used when composing short URLs
func (c *Config) ShortLinkBase() string {
	return strings.TrimSuffix(c.RedirectBaseURL, "/")
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions for reading environment variables

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer or returns default
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

// getEnvAsSlice reads a comma-separated environment variable
func getEnvAsSlice(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
