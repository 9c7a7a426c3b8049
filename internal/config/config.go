package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// WhatsApp webhook (Meta)
	WhatsAppVerifyToken string
	MetaAppSecret       string

	// Webhook rate limiting (per tenant endpoint)
	WebhookRatePerSecond float64
	WebhookRateBurst     int

	// SLA engine
	SweepInterval        time.Duration
	SweepBatchSize       int
	FollowUpInterval     time.Duration
	UseMemoryQueue       bool
	WorkerCount          int
	SLAQueueURL          string
	DefaultFollowUpMins  int
	AlertSuppressionSpan time.Duration

	// Agent auth
	AgentJWTSecret string

	// Redis (tenant settings, alert suppression)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS (SQS queue, SES notifications)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Email notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
	EscalationEmail   string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		MetaAppSecret:       getEnv("META_APP_SECRET", ""),

		WebhookRatePerSecond: getEnvAsFloat("WEBHOOK_RATE_PER_SECOND", 5),
		WebhookRateBurst:     getEnvAsInt("WEBHOOK_RATE_BURST", 300),

		SweepInterval:        getEnvAsDuration("SLA_SWEEP_INTERVAL", 30*time.Second),
		SweepBatchSize:       getEnvAsInt("SLA_SWEEP_BATCH_SIZE", 500),
		FollowUpInterval:     getEnvAsDuration("FOLLOWUP_SWEEP_INTERVAL", time.Minute),
		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		SLAQueueURL:          getEnv("SLA_QUEUE_URL", ""),
		DefaultFollowUpMins:  getEnvAsInt("FOLLOW_UP_DEFAULT_MINUTES", 120),
		AlertSuppressionSpan: getEnvAsDuration("ALERT_SUPPRESSION_SPAN", 15*time.Minute),

		AgentJWTSecret: getEnv("AGENT_JWT_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "ClinicDesk"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "ClinicDesk"),
		EscalationEmail:   getEnv("ESCALATION_EMAIL", ""),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
