// Package config loads engine configuration from the environment and
// optional files. A .env file in the working directory is applied first,
// then real environment variables take precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Tenant resolution modes.
const (
	// ModeSingle syncs the one tenant named in static configuration.
	ModeSingle = "single"
	// ModePartner discovers customer tenants under a partner relationship.
	ModePartner = "partner"
	// ModeRoster reads a static TOML tenant roster file.
	ModeRoster = "roster"
)

// Config holds everything the engine needs to run.
type Config struct {
	// ClientID and ClientSecret identify the app registration used for
	// the client-credential exchange in every tenant.
	ClientID     string
	ClientSecret string

	// TenantMode selects single, partner, or roster resolution.
	TenantMode string
	// TenantID and TenantName describe the fixed tenant in single mode.
	TenantID   string
	TenantName string
	// PartnerTenantID is the partner tenant whose contracts list the
	// customer tenants in partner mode.
	PartnerTenantID string
	// TenantsFile is the TOML roster path in roster mode.
	TenantsFile string

	// DatabasePath is the sqlite store file.
	DatabasePath string

	// TenantWorkers bounds concurrent tenant syncs.
	TenantWorkers int
	// FamilyWorkers bounds concurrent entity families per tenant.
	FamilyWorkers int

	// MaxRetries bounds retry attempts per HTTP request.
	MaxRetries int
	// RetryBaseDelay seeds the exponential backoff.
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps a single backoff delay.
	RetryMaxDelay time.Duration
	// RequestTimeout applies per HTTP request, not per sync.
	RequestTimeout time.Duration
	// RequestsPerSecond and Burst configure the per-tenant rate limiter.
	RequestsPerSecond float64
	Burst             int

	// Endpoint overrides, used by tests and sovereign-cloud deployments.
	GraphBaseURL string
	GraphBetaURL string
	LoginBaseURL string
}

// Load reads configuration, applying a .env file when present.
func Load() (*Config, error) {
	// Missing .env is fine; real env vars win either way.
	_ = godotenv.Load()

	cfg := &Config{
		ClientID:          os.Getenv("CLIENT_ID"),
		ClientSecret:      os.Getenv("CLIENT_SECRET"),
		TenantMode:        envOr("TENANT_MODE", ModeSingle),
		TenantID:          os.Getenv("TENANT_ID"),
		TenantName:        os.Getenv("TENANT_NAME"),
		PartnerTenantID:   os.Getenv("PARTNER_TENANT_ID"),
		TenantsFile:       os.Getenv("TENANTS_FILE"),
		DatabasePath:      envOr("DATABASE_PATH", "./data/tenantsync.db"),
		TenantWorkers:     envInt("TENANT_WORKERS", 4),
		FamilyWorkers:     envInt("FAMILY_WORKERS", 3),
		MaxRetries:        envInt("MAX_RETRIES", 5),
		RetryBaseDelay:    envDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:     envDuration("RETRY_MAX_DELAY", 30*time.Second),
		RequestTimeout:    envDuration("REQUEST_TIMEOUT", 60*time.Second),
		RequestsPerSecond: envFloat("REQUESTS_PER_SECOND", 10.0),
		Burst:             envInt("REQUEST_BURST", 15),
		GraphBaseURL:      envOr("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		GraphBetaURL:      envOr("GRAPH_BETA_URL", "https://graph.microsoft.com/beta"),
		LoginBaseURL:      envOr("LOGIN_BASE_URL", "https://login.microsoftonline.com"),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET are required")
	}
	switch c.TenantMode {
	case ModeSingle:
		if c.TenantID == "" {
			return fmt.Errorf("TENANT_ID is required in single mode")
		}
	case ModePartner:
		if c.PartnerTenantID == "" {
			return fmt.Errorf("PARTNER_TENANT_ID is required in partner mode")
		}
	case ModeRoster:
		if c.TenantsFile == "" {
			return fmt.Errorf("TENANTS_FILE is required in roster mode")
		}
	default:
		return fmt.Errorf("unknown TENANT_MODE %q", c.TenantMode)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
