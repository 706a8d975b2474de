package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// MaxTimestampTolerance is the largest request age the voice platform allows a skill to accept.
const MaxTimestampTolerance = 150

// Config holds all configuration for the speech practice service
type Config struct {
	// Server configuration
	Port            string `envconfig:"PORT" default:"8080"`
	MaxRequestBytes int64  `envconfig:"MAX_REQUEST_BYTES" default:"131072"` // Skill request body limit

	// Skill configuration
	// Application ID requests must carry. Empty accepts any skill (development only).
	SkillID string `envconfig:"ALEXA_SKILL_ID" default:""`

	// Request verification
	VerifyRequests            bool `envconfig:"VERIFY_REQUESTS" default:"true"`
	RequestTimestampTolerance int  `envconfig:"REQUEST_TIMESTAMP_TOLERANCE" default:"150"` // seconds
	CertFetchTimeout          int  `envconfig:"CERT_FETCH_TIMEOUT" default:"10"`           // seconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Consecutive failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Practice stream
	StreamEnabled         bool  `envconfig:"STREAM_ENABLED" default:"true"`
	StreamMaxMessageBytes int64 `envconfig:"STREAM_MAX_MESSAGE_BYTES" default:"4096"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.RequestTimestampTolerance <= 0 || c.RequestTimestampTolerance > MaxTimestampTolerance {
		return fmt.Errorf("REQUEST_TIMESTAMP_TOLERANCE must be between 1 and %d seconds", MaxTimestampTolerance)
	}
	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BYTES must be positive")
	}
	if c.StreamMaxMessageBytes <= 0 {
		return fmt.Errorf("STREAM_MAX_MESSAGE_BYTES must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.CircuitBreakerMaxFailures < 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_MAX_FAILURES must be at least 1")
	}
	return nil
}

// TimestampTolerance returns the accepted request age
func (c *Config) TimestampTolerance() time.Duration {
	return time.Duration(c.RequestTimestampTolerance) * time.Second
}

// CertTimeout returns the certificate download timeout
func (c *Config) CertTimeout() time.Duration {
	return time.Duration(c.CertFetchTimeout) * time.Second
}

// BreakerResetTimeout returns how long the breaker stays open
func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// RetryBackoff returns the initial retry backoff
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoff) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
