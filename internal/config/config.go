package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port            string
	AllowedOrigins  []string
	LogLevel        string
	Environment     string
	DatabaseURL     string // postgres:// URL or SQLite path / sqlite:// URL
	DatabaseReadURL string // Read replica URL for SELECT queries (PostgreSQL only)
	AutoMigrate     bool
	RedisURL        string // Optional; enables track rate limiting
	TrackRateLimit  int    // Track requests per origin per hour
	StaticDir       string

	// TrustProxyHeaders honours X-Forwarded-For and friends for the client
	// address. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	SessionCookieName   string
	SessionCookieSecure bool
	SessionCookieMaxAge int // Seconds
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		AllowedOrigins:  parseOrigins(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Environment:     getEnv("ENVIRONMENT", "production"),
		DatabaseURL:     getEnv("DATABASE_URL", "sqlite://visitor_counter.db"),
		DatabaseReadURL: getEnv("DATABASE_READ_URL", getEnv("DATABASE_URL", "")), // Falls back to write DB if not set
		AutoMigrate:     getBoolEnv("AUTO_MIGRATE", true),
		RedisURL:        getEnv("REDIS_URL", ""),
		TrackRateLimit:  getIntEnv("TRACK_RATE_LIMIT", 120),
		StaticDir:       getEnv("STATIC_DIR", ""),

		TrustProxyHeaders: getBoolEnv("TRUST_PROXY_HEADERS", false),

		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "visitor_session_id"),
		SessionCookieSecure: getBoolEnv("SESSION_COOKIE_SECURE", false),
		SessionCookieMaxAge: getIntEnv("SESSION_COOKIE_MAX_AGE", 30*24*60*60),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	if c.TrackRateLimit <= 0 {
		return fmt.Errorf("TRACK_RATE_LIMIT must be positive, got %d", c.TrackRateLimit)
	}
	if c.SessionCookieName == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}
	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value.
// Unparseable values are kept as -1 so Validate reports them.
func getIntEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return parsed
}
