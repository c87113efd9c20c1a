// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, IdP) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Voltgrid identity service.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis) — login attempt counters
	RedisURL string `env:"REDIS_URL,required"`

	// External identity provider (OAuth2/OIDC)
	IdPBaseURL      string `env:"IDP_BASE_URL,required"`
	IdPRealm        string `env:"IDP_REALM,required"`
	IdPClientID     string `env:"IDP_CLIENT_ID,required"`
	IdPClientSecret string `env:"IDP_CLIENT_SECRET,required"`

	// Token verification
	TokenIssuer   string `env:"TOKEN_ISSUER,required"`
	TokenAudience string `env:"TOKEN_AUDIENCE,required"`

	// Registration policy
	VerificationTTL time.Duration `env:"VERIFICATION_TTL"   envDefault:"24h"`
	ResendCooldown  time.Duration `env:"RESEND_COOLDOWN"    envDefault:"60s"`
	ResendMax       int           `env:"RESEND_MAX"         envDefault:"3"`

	// Login throttling (per identifier+IP)
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW"  envDefault:"5m"`
	LoginRateMax    int           `env:"LOGIN_RATE_MAX"     envDefault:"10"`

	// Invitation policy
	InvitationDefaultTTL time.Duration `env:"INVITATION_DEFAULT_TTL" envDefault:"72h"`

	// Background reconciliation against the IdP
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
