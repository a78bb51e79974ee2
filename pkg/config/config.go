package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every tunable the gateway consumes. It is built once at
// startup and passed explicitly to each component; nothing reads the
// environment after Load returns.
type Config struct {
	// Credential signing
	CredentialSecret string
	CredentialExpiry time.Duration

	// Broker connection tokens are signed with a secret independent from
	// the credential secret; the two trust domains never share keys.
	BrokerSecret string

	// Broker backend selection: "redis" or "kafka".
	BrokerBackend string
	BrokerAddress string
	BrokerPort    int
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string

	// Rate limiting
	RateLimitEnabled     bool
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int

	// HTTP
	Port string
}

// Load builds a Config from the process environment. Secrets are required;
// everything else falls back to a sane default.
func Load() Config {
	return Config{
		CredentialSecret:     RequireEnv("JWT_SECRET"),
		CredentialExpiry:     time.Duration(GetEnvInt("JWT_EXPIRY", 3600)) * time.Second,
		BrokerSecret:         RequireEnv("BROKER_SECRET"),
		BrokerBackend:        GetEnv("BROKER_BACKEND", "redis"),
		BrokerAddress:        GetEnv("BROKER_ADDRESS", "localhost"),
		BrokerPort:           GetEnvInt("BROKER_PORT", 6379),
		RedisURL:             GetEnv("REDIS_URL", ""),
		KafkaBrokers:         splitList(GetEnv("KAFKA_BROKERS", "")),
		KafkaTopic:           GetEnv("KAFKA_TOPIC", "gateway_events"),
		RateLimitEnabled:     GetEnvBool("ENABLE_RATE_LIMIT", false),
		RateLimitWindow:      time.Duration(GetEnvInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
		RateLimitMaxRequests: GetEnvInt("RATE_LIMIT_MAX_REQUESTS", 100),
		Port:                 GetEnv("PORT", "18010"),
	}
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoadEnv loads environment variables from .env files
func LoadEnv(logger *logrus.Logger) {
	files := []string{".env", ".env.dev"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) == 0 {
		if logger != nil {
			logger.Debug("No local env files loaded; relying on process environment")
		}
	} else {
		if logger != nil {
			logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
		}
	}
}

// GetEnv gets an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool gets a boolean environment variable with a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetLogLevel gets the log level from environment
func GetLogLevel() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// RequireEnv fetches a variable and exits the process if it is empty.
func RequireEnv(key string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		logrus.Fatalf("environment variable %s is required but not set", key)
	}
	return value
}
