package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	DatabaseURL        string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Lead lifecycle
	LeadTTL             time.Duration
	ExpirySweepInterval time.Duration
	ExpirySweepBatch    int
	LockTTL             time.Duration
	LockWait            time.Duration

	// Redis (per-lead locks, purchase velocity)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	PurchaseVelocityMax    int
	PurchaseVelocityWindow time.Duration

	// Stripe
	StripeSecretKey   string
	StripeBaseURL     string
	StripeDryRun      bool
	AllowFakePayments bool

	// Email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	EventsQueueURL      string
	PerformanceTable    string
	ArchiveBucket       string
	OutboxPollInterval  time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		LeadTTL:             getEnvAsDuration("LEAD_TTL", 30*24*time.Hour),
		ExpirySweepInterval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", 15*time.Minute),
		ExpirySweepBatch:    getEnvAsInt("EXPIRY_SWEEP_BATCH", 100),
		LockTTL:             getEnvAsDuration("LOCK_TTL", 15*time.Second),
		LockWait:            getEnvAsDuration("LOCK_WAIT", 5*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PurchaseVelocityMax:    getEnvAsInt("PURCHASE_VELOCITY_MAX", 10),
		PurchaseVelocityWindow: getEnvAsDuration("PURCHASE_VELOCITY_WINDOW", time.Hour),

		StripeSecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
		StripeBaseURL:     getEnv("STRIPE_BASE_URL", ""),
		StripeDryRun:      getEnvAsBool("STRIPE_DRY_RUN", false),
		AllowFakePayments: getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "SafeHome Leads"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),
		PerformanceTable:    getEnv("PERFORMANCE_TABLE", ""),
		ArchiveBucket:       getEnv("ARCHIVE_BUCKET", ""),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
	}
}

// UseAWS reports whether any AWS-backed component is configured.
func (c *Config) UseAWS() bool {
	return c.EventsQueueURL != "" || c.PerformanceTable != "" || c.ArchiveBucket != "" ||
		c.EmailProvider == "ses"
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

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
