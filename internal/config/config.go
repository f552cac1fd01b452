package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Notifications NotificationConfig
	Logger        LoggerConfig
	CatalogPath   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
}

// NotificationConfig holds RTDN delivery configuration
type NotificationConfig struct {
	Enabled       bool
	WebhookURL    string
	WebhookSecret string
	RedisAddr     string
	RedisChannel  string
	Subscription  string // Pub/Sub subscription name stamped on envelopes
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Notifications: NotificationConfig{
			Enabled:       getEnvAsBool("RTDN_ENABLED", true),
			WebhookURL:    getEnv("RTDN_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("RTDN_WEBHOOK_SECRET", ""),
			RedisAddr:     getEnv("RTDN_REDIS_ADDR", ""),
			RedisChannel:  getEnv("RTDN_REDIS_CHANNEL", "play.rtdn"),
			Subscription:  getEnv("RTDN_SUBSCRIPTION", ""),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		CatalogPath: getEnv("CATALOG_PATH", "products.yaml"),
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT out of range: %d", cfg.Server.Port)
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func getEnvAsBool(key string, defaultValue bool) bool {
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
