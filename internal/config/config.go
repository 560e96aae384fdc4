package config

import (
	"fmt"
	"os"
	"strconv"
)

// Default WHOOP endpoints. Overridable via environment so tests and staging
// can point at a different server.
const (
	DefaultAuthURL    = "https://api.prod.whoop.com/oauth/oauth2/auth"
	DefaultTokenURL   = "https://api.prod.whoop.com/oauth/oauth2/token"
	DefaultAPIBaseURL = "https://api.prod.whoop.com/developer"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// Database configuration
	DatabasePath string

	// WHOOP API configuration
	WhoopClientID     string
	WhoopClientSecret string
	WhoopRedirectURI  string
	WhoopAuthURL      string
	WhoopTokenURL     string
	WhoopAPIBaseURL   string

	// Internal API configuration
	InternalAPIKey string

	// Metrics configuration
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int

	// Logging configuration
	LogLevel string
}

// Load reads configuration from environment variables
// It fails fast if required variables are missing
func Load() (*Config, error) {
	cfg := &Config{
		// Optional values with defaults
		Host:            getEnv("HOST", "localhost"),
		Port:            getEnvInt("PORT", 4201),
		DatabasePath:    getEnv("DATABASE_PATH", "./data.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		WhoopAuthURL:    getEnv("WHOOP_AUTH_URL", DefaultAuthURL),
		WhoopTokenURL:   getEnv("WHOOP_TOKEN_URL", DefaultTokenURL),
		WhoopAPIBaseURL: getEnv("WHOOP_API_BASE_URL", DefaultAPIBaseURL),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", false),
		MetricsHost:     getEnv("METRICS_HOST", "localhost"),
		MetricsPort:     getEnvInt("METRICS_PORT", 4202),
	}

	// Required values
	var missingVars []string

	cfg.WhoopClientID = os.Getenv("WHOOP_CLIENT_ID")
	if cfg.WhoopClientID == "" {
		missingVars = append(missingVars, "WHOOP_CLIENT_ID")
	}

	cfg.WhoopClientSecret = os.Getenv("WHOOP_CLIENT_SECRET")
	if cfg.WhoopClientSecret == "" {
		missingVars = append(missingVars, "WHOOP_CLIENT_SECRET")
	}

	cfg.WhoopRedirectURI = os.Getenv("WHOOP_REDIRECT_URI")
	if cfg.WhoopRedirectURI == "" {
		missingVars = append(missingVars, "WHOOP_REDIRECT_URI")
	}

	cfg.InternalAPIKey = os.Getenv("INTERNAL_API_KEY")
	if cfg.InternalAPIKey == "" {
		missingVars = append(missingVars, "INTERNAL_API_KEY")
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return cfg, nil
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

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
