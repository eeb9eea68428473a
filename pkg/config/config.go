package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Login state storage
	State StateConfig

	// Where the provider options are read from
	Settings SettingsConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	BaseURL         string // externally visible root, used for the callback URL
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StateConfig selects the CSRF state store
type StateConfig struct {
	Type          string // memory or redis
	TTL           time.Duration
	MemorySize    int
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
}

// SettingsConfig selects the provider settings source
type SettingsConfig struct {
	Source string // env or file
	File   string
	Watch  bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  logrus.Level
	LogFormat string // json or text

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		State:         loadStateConfig(),
		Settings:      loadSettingsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	port := getEnv("KEYCLOAK_AUTH_PORT", "8080")
	return ServerConfig{
		Host:            getEnv("KEYCLOAK_AUTH_HOST", "0.0.0.0"),
		Port:            port,
		BaseURL:         getEnv("KEYCLOAK_AUTH_BASE_URL", "http://localhost:"+port),
		ReadTimeout:     getEnvDuration("KEYCLOAK_AUTH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("KEYCLOAK_AUTH_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("KEYCLOAK_AUTH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("KEYCLOAK_AUTH_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadStateConfig loads state store configuration from environment
func loadStateConfig() StateConfig {
	return StateConfig{
		Type:          strings.ToLower(getEnv("KEYCLOAK_AUTH_STATE_STORE", "memory")),
		TTL:           getEnvDuration("KEYCLOAK_AUTH_STATE_TTL", 10*time.Minute),
		MemorySize:    getEnvInt("KEYCLOAK_AUTH_STATE_MEMORY_SIZE", 10000),
		RedisURL:      getEnv("KEYCLOAK_AUTH_REDIS_URL", ""),
		RedisPassword: getEnv("KEYCLOAK_AUTH_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("KEYCLOAK_AUTH_REDIS_DB", 0),
		RedisPoolSize: getEnvInt("KEYCLOAK_AUTH_REDIS_POOL_SIZE", 10),
	}
}

// loadSettingsConfig loads the settings source selection from environment
func loadSettingsConfig() SettingsConfig {
	file := getEnv("KEYCLOAK_AUTH_SETTINGS_FILE", "")
	source := "env"
	if file != "" {
		source = "file"
	}
	return SettingsConfig{
		Source: getEnv("KEYCLOAK_AUTH_SETTINGS_SOURCE", source),
		File:   file,
		Watch:  getEnvBool("KEYCLOAK_AUTH_SETTINGS_WATCH", true),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("KEYCLOAK_AUTH_LOG_LEVEL", "info")),
		LogFormat:          getEnv("KEYCLOAK_AUTH_LOG_FORMAT", "json"),
		MetricsEnabled:     getEnvBool("KEYCLOAK_AUTH_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("KEYCLOAK_AUTH_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("KEYCLOAK_AUTH_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("KEYCLOAK_AUTH_OTEL_SERVICE_NAME", "keycloak-auth"),
		OTelServiceVersion: getEnv("KEYCLOAK_AUTH_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("KEYCLOAK_AUTH_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("KEYCLOAK_AUTH_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("base URL must start with http:// or https://: %q", c.Server.BaseURL)
	}

	switch c.State.Type {
	case "memory":
	case "redis":
		if c.State.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis state store")
		}
	default:
		return fmt.Errorf("invalid state store type: %s (must be memory or redis)", c.State.Type)
	}
	if c.State.TTL <= 0 {
		return fmt.Errorf("state TTL must be positive")
	}

	switch c.Settings.Source {
	case "env":
	case "file":
		if c.Settings.File == "" {
			return fmt.Errorf("settings file is required for file settings source")
		}
	default:
		return fmt.Errorf("invalid settings source: %s (must be env or file)", c.Settings.Source)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
