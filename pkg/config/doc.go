// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates the host configuration from environment
// variables with sensible defaults for all settings. It also provides the two
// settings sources the Keycloak provider reads its options from.
//
// # Configuration Structure
//
// Server settings:
//
//	KEYCLOAK_AUTH_HOST="0.0.0.0"
//	KEYCLOAK_AUTH_PORT="8080"
//	KEYCLOAK_AUTH_BASE_URL="https://app.example.com"
//	KEYCLOAK_AUTH_READ_TIMEOUT="15s"
//	KEYCLOAK_AUTH_WRITE_TIMEOUT="15s"
//
// State store settings:
//
//	KEYCLOAK_AUTH_STATE_STORE="memory"  # memory, redis
//	KEYCLOAK_AUTH_STATE_TTL="10m"
//	KEYCLOAK_AUTH_REDIS_URL="redis://localhost:6379"
//
// Provider settings source:
//
//	KEYCLOAK_AUTH_SETTINGS_SOURCE="env"  # env, file
//	KEYCLOAK_AUTH_SETTINGS_FILE="/etc/keycloak-auth/settings.yaml"
//	KEYCLOAK_AUTH_SETTINGS_WATCH="true"
//
// With the env source, auth.keycloak.config is read from AUTH_KEYCLOAK_CONFIG
// and so on for every option.
//
// Observability settings:
//
//	KEYCLOAK_AUTH_LOG_LEVEL="info"  # debug, info, warn, error
//	KEYCLOAK_AUTH_METRICS_ENABLED="true"
//	KEYCLOAK_AUTH_OTEL_ENABLED="true"
//	KEYCLOAK_AUTH_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	settings, err := config.NewFileSettings(cfg.Settings.File, logger)
//
// # Related Packages
//
//   - pkg/keycloak: Reads provider options through a SettingsSource
//   - pkg/observability: Uses observability configuration
package config
