package authapi

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	// TrustProxy makes clientIP honour X-Forwarded-For / X-Real-IP.
	TrustProxy bool `env:"IDREG_AUTH_TRUST_PROXY" envDefault:"false"`

	// MaxBodyBytes caps every JSON request body.
	MaxBodyBytes int64 `env:"IDREG_AUTH_MAX_BODY_BYTES" envDefault:"65536"`

	// RetryAfterSeconds is advertised on 503 responses.
	RetryAfterSeconds int `env:"IDREG_AUTH_RETRY_AFTER_SECONDS" envDefault:"1"`
}

// DefaultConfig returns the defaults used when no environment is set.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: 64 << 10, RetryAfterSeconds: 1}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("authapi: %w", err)
	}
	if cfg.MaxBodyBytes <= 0 || cfg.MaxBodyBytes > 1<<20 {
		return Config{}, fmt.Errorf("authapi: IDREG_AUTH_MAX_BODY_BYTES out of range (1..1048576): %d", cfg.MaxBodyBytes)
	}
	if cfg.RetryAfterSeconds < 0 {
		cfg.RetryAfterSeconds = 0
	}
	return cfg, nil
}
