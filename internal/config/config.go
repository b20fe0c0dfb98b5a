// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/folio-auth/internal/auth"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
	"default_secret_key",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SecretKey   string `env:"FOLIO_SECRET_KEY,required"`
	DatabaseURL string `env:"FOLIO_DATABASE_URL" envDefault:"sqlite://./data/folio.db"`
	ServerHost  string `env:"FOLIO_SERVER_HOST" envDefault:"localhost"`
	ServerPort  int    `env:"FOLIO_SERVER_PORT" envDefault:"8080"`
	BaseURL     string `env:"FOLIO_BASE_URL" envDefault:"http://localhost:8080"`
	Env         string `env:"FOLIO_ENV" envDefault:"development"`
	LogLevel    string `env:"FOLIO_LOG_LEVEL" envDefault:"info"`

	// Session configuration
	RedisURL    string        `env:"FOLIO_REDIS_URL"`                      // Optional Redis session store
	RememberFor time.Duration `env:"FOLIO_REMEMBER_FOR" envDefault:"720h"` // Lifetime of "remember me" cookies

	// SMTP configuration for transactional email
	SMTPHost     string `env:"FOLIO_SMTP_HOST"`
	SMTPPort     int    `env:"FOLIO_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"FOLIO_SMTP_USERNAME"`
	SMTPPassword string `env:"FOLIO_SMTP_PASSWORD"`
	SMTPFrom     string `env:"FOLIO_SMTP_FROM"`

	// Event log retention applied by the -purge-events command
	EventRetention time.Duration `env:"FOLIO_EVENT_RETENTION" envDefault:"2160h"`

	// Bootstrap admin, created at startup when the users table is empty
	AdminEmail    string `env:"FOLIO_ADMIN_EMAIL"`
	AdminPassword string `env:"FOLIO_ADMIN_PASSWORD"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisSessions returns true if sessions should be kept in Redis.
func (c Config) UseRedisSessions() bool {
	return c.RedisURL != ""
}

// SMTPEnabled returns true if an SMTP relay is configured.
func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != ""
}

// MailFrom returns the sender address, falling back to the SMTP username.
func (c Config) MailFrom() string {
	if c.SMTPFrom != "" {
		return c.SMTPFrom
	}
	return c.SMTPUsername
}

// SeedAdmin returns true if a bootstrap admin account is configured.
func (c Config) SeedAdmin() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

// MinSecretKeyLength is the minimum required length for the secret key.
const MinSecretKeyLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.SecretKey) < MinSecretKeyLength {
		return nil, fmt.Errorf("FOLIO_SECRET_KEY must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSecretKeyLength, len(cfg.SecretKey))
	}

	for _, weak := range knownWeakSecrets {
		if cfg.SecretKey == weak {
			return nil, fmt.Errorf("FOLIO_SECRET_KEY is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	if !hasMinimumEntropy(cfg.SecretKey) {
		slog.Warn("FOLIO_SECRET_KEY has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	if cfg.RememberFor <= 0 {
		return nil, fmt.Errorf("FOLIO_REMEMBER_FOR must be positive, got %s", cfg.RememberFor)
	}

	if cfg.EventRetention <= 0 {
		return nil, fmt.Errorf("FOLIO_EVENT_RETENTION must be positive, got %s", cfg.EventRetention)
	}

	if cfg.AdminPassword != "" {
		if err := auth.CheckPasswordLength(cfg.AdminPassword); err != nil {
			return nil, fmt.Errorf("FOLIO_ADMIN_PASSWORD must be at least %d characters long", auth.MinPasswordLength)
		}
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
