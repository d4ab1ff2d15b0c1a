package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Order reservation configuration
	OrderLockTTL      time.Duration
	ReconciliationTTL time.Duration
	PushRateLimit     int
	RequireAuth       bool

	// Monitoring
	EnableMetrics bool
	MetricsPort   string

	Mpesa MpesaConfig
}

// MpesaConfig holds the Daraja credentials and client tuning.
type MpesaConfig struct {
	Environment       string
	ShortCode         string
	PassKey           string
	ConsumerKey       string
	ConsumerSecret    string
	CallbackURL       string
	CallbackTokenHash string
	PartyB            string
	TransactionType   string
	BaseURL           string
	HTTPTimeout       time.Duration
	MaxAmount         int64

	Simulate            bool
	SimulateSuccessRate float64
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "mpesa-gateway"),

		// Orders
		OrderLockTTL:      getEnvAsDuration("ORDER_LOCK_TTL", "30s"),
		ReconciliationTTL: getEnvAsDuration("RECONCILIATION_TTL", "24h"),
		PushRateLimit:     getEnvAsInt("PUSH_RATE_LIMIT", 10),
		RequireAuth:       getEnvAsBool("REQUIRE_AUTH", true),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),

		Mpesa: MpesaConfig{
			Environment:       getEnv("MPESA_ENVIRONMENT", "sandbox"),
			ShortCode:         getEnv("MPESA_SHORT_CODE", ""),
			PassKey:           getEnv("MPESA_PASS_KEY", ""),
			ConsumerKey:       getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:    getEnv("MPESA_CONSUMER_SECRET", ""),
			CallbackURL:       getEnv("MPESA_CALLBACK_URL", ""),
			CallbackTokenHash: getEnv("MPESA_CALLBACK_TOKEN_HASH", ""),
			PartyB:            getEnv("MPESA_PARTY_B", ""),
			TransactionType:   getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			BaseURL:           getEnv("MPESA_BASE_URL", ""),
			HTTPTimeout:       getEnvAsDuration("MPESA_HTTP_TIMEOUT", "15s"),
			MaxAmount:         int64(getEnvAsInt("MPESA_MAX_AMOUNT", 250000)),

			Simulate:            getEnvAsBool("MPESA_SIMULATE", false),
			SimulateSuccessRate: getEnvAsFloat("MPESA_SIMULATE_SUCCESS_RATE", 0.8),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
