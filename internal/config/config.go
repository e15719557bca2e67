package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	SessionTTL         time.Duration
	CacheSweepInterval time.Duration

	WritebackInterval time.Duration

	NLUTimeout           time.Duration
	AWSRegion            string
	BedrockModelID       string
	GeminiAPIKey         string
	GeminiModelID        string
	InterpreterMaxTokens int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionTTL:         getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		CacheSweepInterval: getEnvAsDuration("CACHE_SWEEP_INTERVAL", 5*time.Minute),

		WritebackInterval: getEnvAsDuration("WRITEBACK_INTERVAL", 10*time.Second),

		NLUTimeout:           getEnvAsDuration("NLU_TIMEOUT", 8*time.Second),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		InterpreterMaxTokens: getEnvAsInt("INTERPRETER_MAX_TOKENS", 512),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
