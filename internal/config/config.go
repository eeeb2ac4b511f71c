package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	BaseURL     string `env:"BASE_URL" envDefault:""`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	StorePath   string `env:"STORE_PATH"`

	AdminUser         string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	EvidenceDir string `env:"EVIDENCE_DIR" envDefault:"data/evidence"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`

	VerifierURL            string `env:"VERIFIER_URL"`
	VerifierTimeoutSeconds int    `env:"VERIFIER_TIMEOUT_SECONDS" envDefault:"20"`

	RecordTTLSeconds     int `env:"RECORD_TTL_SECONDS" envDefault:"1800"`
	SweepIntervalSeconds int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"300"`
	RateLimitPerMin      int `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
}

func (c *Config) RecordTTL() time.Duration {
	return time.Duration(c.RecordTTLSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) VerifierTimeout() time.Duration {
	return time.Duration(c.VerifierTimeoutSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.RecordTTLSeconds <= 0 {
		return fmt.Errorf("RECORD_TTL_SECONDS must be positive")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}

	if c.S3Bucket != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_BUCKET is set")
	}

	if isProduction {
		if c.AdminPasswordHash == "" {
			log.Warn().Msg("ADMIN_PASSWORD_HASH is empty in production: operator login disabled")
		}
		if c.BaseURL == "" {
			log.Warn().Msg("BASE_URL is empty in production: capture links will be derived from request headers")
		}
		if c.RedisURL != "" && strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
