package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds shared runtime configuration for the relay and scheduler services.
type Config struct {
	Env         string
	HTTPPort    string
	MetricsAddr string

	StoreBaseURL     string
	StoreAPIKey      string
	TasksTable       string
	CorrelationTable string
	StoreTimeout     time.Duration

	VoiceAPIURL      string
	VoiceAPIKey      string
	PlaceCallTimeout time.Duration

	ChatWebhookURL string
	ChatTimeout    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PollInterval       time.Duration
	MaxConcurrentCalls int
	ReclaimTimeout     time.Duration
	MaxClaimAttempts   int

	RateLimitCapacity int
	RateLimitRefill   float64
}

// Load reads configuration from environment variables with sane defaults for local development.
func Load() Config {
	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		StoreBaseURL:     getEnv("STORE_BASE_URL", "http://localhost:8790/v0/base"),
		StoreAPIKey:      getEnv("STORE_API_KEY", ""),
		TasksTable:       getEnv("TASKS_TABLE", "ScheduledCallTask"),
		CorrelationTable: getEnv("CORRELATION_TABLE", "OutboundCallRequest"),
		StoreTimeout:     getEnvDuration("STORE_TIMEOUT", 15*time.Second),

		VoiceAPIURL:      getEnv("VOICE_API_URL", "http://localhost:8791/calls"),
		VoiceAPIKey:      getEnv("VOICE_API_KEY", ""),
		PlaceCallTimeout: getEnvDuration("PLACE_CALL_TIMEOUT", 30*time.Second),

		ChatWebhookURL: getEnv("CHAT_WEBHOOK_URL", ""),
		ChatTimeout:    getEnvDuration("CHAT_TIMEOUT", 10*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PollInterval:       getEnvDuration("POLL_INTERVAL", 30*time.Second),
		MaxConcurrentCalls: getEnvInt("MAX_CONCURRENT_CALLS", 4),
		ReclaimTimeout:     getEnvDuration("RECLAIM_TIMEOUT", 10*time.Minute),
		MaxClaimAttempts:   getEnvInt("MAX_CLAIM_ATTEMPTS", 3),

		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 0.5),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
