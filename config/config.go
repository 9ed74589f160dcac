package config

import (
	"os"
	"strconv"
	"time"
)

// RabbitMQConfig holds the optional result-publisher settings. An empty URL
// disables publishing.
type RabbitMQConfig struct {
	URL              string
	Exchange         string
	RoutedRoutingKey string
}

// Config holds all configuration for the issue routing pipeline service.
type Config struct {
	// Server configuration
	Port string

	// LLM configuration
	LLMProvider  string // "gemini", "openai" or "stub"
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string

	// Gateway retry policy
	MaxRetries     int
	RepairRetries  int
	RetryBaseDelay time.Duration

	// Default jurisdiction when location cannot be determined
	DefaultCity  string
	DefaultState string

	// Fixed confidence assigned to last-resort guesses
	GuessConfidence float64

	// DNS verifier hard timeout
	DNSTimeout time.Duration

	RabbitMQ RabbitMQConfig

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		LLMProvider:  getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-search-preview"),

		MaxRetries:     getIntEnv("MAX_RETRIES", 5),
		RepairRetries:  getIntEnv("JSON_REPAIR_RETRIES", 3),
		RetryBaseDelay: getDurationEnv("RETRY_BASE_DELAY", 500*time.Millisecond),

		DefaultCity:  getEnv("DEFAULT_CITY", "Palo Alto"),
		DefaultState: getEnv("DEFAULT_STATE", "CA"),

		GuessConfidence: getFloatEnv("GUESS_CONFIDENCE", 0.1),

		DNSTimeout: getDurationEnv("DNS_TIMEOUT", 5*time.Second),

		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("AMQP_URL", ""),
			Exchange:         getEnv("AMQP_EXCHANGE", "civicreport"),
			RoutedRoutingKey: getEnv("AMQP_ROUTED_ROUTING_KEY", "report.routed"),
		},

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value.
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
