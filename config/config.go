// Package config provides configuration for the turn engine service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Data directory for the vector knowledge index
	DataDir string

	// Policy document (YAML); empty means built-in defaults
	PolicyPath string

	// Reasoning backend
	BackendURL     string
	BackendAPIKey  string
	BackendModel   string
	BackendTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:    getEnv("DATABASE_URL", "file:turnengine.db?cache=shared&mode=rwc"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		PolicyPath:     getEnv("POLICY_PATH", ""),
		BackendURL:     getEnv("BACKEND_URL", "https://api.openai.com"),
		BackendAPIKey:  getEnv("BACKEND_API_KEY", ""),
		BackendModel:   getEnv("BACKEND_MODEL", "gpt-4o-mini"),
		BackendTimeout: time.Duration(getEnvInt("BACKEND_TIMEOUT_MS", 120000)) * time.Millisecond,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
