// Package config provides the gateway's file-and-environment configuration.
package config

import (
	"time"

	"github.com/tamshai/gateway/internal/domain/confirm"
	"github.com/tamshai/gateway/internal/domain/identity"
	"github.com/tamshai/gateway/internal/domain/page"
	"github.com/tamshai/gateway/internal/domain/policy"
	"github.com/tamshai/gateway/internal/domain/tool"
)

// Config is the top-level gateway configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Identity holds the provisioned bearer tokens.
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`

	// Policy holds the role grants. An empty table is valid and denies
	// everything (default-deny).
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy" validate:"omitempty"`

	// Confirmation configures the two-phase write workflow.
	Confirmation ConfirmationConfig `yaml:"confirmation" mapstructure:"confirmation"`

	// Page configures read pagination.
	Page PageConfig `yaml:"page" mapstructure:"page"`

	// Backends lists the per-domain tool backends.
	Backends []BackendConfig `yaml:"backends" mapstructure:"backends" validate:"omitempty,dive"`

	// Audit configures the audit trail.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// DevMode loosens logging for local development.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr" mapstructure:"addr"`
	// ShutdownTimeout bounds graceful shutdown, e.g. "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// IdentityConfig holds the provisioned bearer tokens.
type IdentityConfig struct {
	Tokens []TokenConfig `yaml:"tokens" mapstructure:"tokens" validate:"omitempty,dive"`
}

// TokenConfig is one provisioned bearer token. Only the Argon2id hash is
// configured; the raw token never appears in config.
type TokenConfig struct {
	Hash       string   `yaml:"hash" mapstructure:"hash" validate:"required,startswith=$argon2id$"`
	Subject    string   `yaml:"subject" mapstructure:"subject" validate:"required"`
	Username   string   `yaml:"username" mapstructure:"username" validate:"required"`
	Email      string   `yaml:"email" mapstructure:"email" validate:"omitempty,email"`
	Department string   `yaml:"department" mapstructure:"department"`
	Roles      []string `yaml:"roles" mapstructure:"roles" validate:"omitempty,dive,required"`
	// ExpiresAt is an optional RFC 3339 expiry.
	ExpiresAt string `yaml:"expires_at" mapstructure:"expires_at" validate:"omitempty"`
	// Revoked disables the token without removing it from config.
	Revoked bool `yaml:"revoked" mapstructure:"revoked"`
}

// PolicyConfig holds the role grants.
type PolicyConfig struct {
	Grants []GrantConfig `yaml:"grants" mapstructure:"grants" validate:"omitempty,dive"`
}

// GrantConfig is one role grant.
type GrantConfig struct {
	Role   string `yaml:"role" mapstructure:"role" validate:"required"`
	Domain string `yaml:"domain" mapstructure:"domain" validate:"required"`
	Tool   string `yaml:"tool" mapstructure:"tool" validate:"required"`
	Class  string `yaml:"class" mapstructure:"class" validate:"required,oneof=READ WRITE"`
	// Condition is an optional CEL ownership condition.
	Condition string `yaml:"condition" mapstructure:"condition"`
}

// ConfirmationConfig configures the two-phase write workflow.
type ConfirmationConfig struct {
	// Timeout is how long a confirmation stays resolvable, e.g. "5m".
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
	// Store is "memory" or "sqlite".
	Store string `yaml:"store" mapstructure:"store" validate:"omitempty,oneof=memory sqlite"`
	// SQLitePath is the database path when Store is "sqlite".
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	// SweepInterval enables the optional janitor, e.g. "1m". Empty disables it.
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// PageConfig configures read pagination.
type PageConfig struct {
	// SoftCap is the page size; backends fetch SoftCap+1 rows.
	SoftCap int `yaml:"soft_cap" mapstructure:"soft_cap" validate:"omitempty,gt=0,lte=1000"`
}

// BackendConfig configures one domain backend.
type BackendConfig struct {
	// Domain is the backend's domain name, e.g. "finance".
	Domain string `yaml:"domain" mapstructure:"domain" validate:"required"`
	// Kind is "postgres" or "mcp".
	Kind string `yaml:"kind" mapstructure:"kind" validate:"required,oneof=postgres mcp"`
	// DSN is the database connection string (postgres backends).
	DSN string `yaml:"dsn" mapstructure:"dsn" validate:"required_if=Kind postgres"`
	// URL is the remote MCP endpoint (mcp backends).
	URL string `yaml:"url" mapstructure:"url" validate:"required_if=Kind mcp,omitempty,url"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Dir is the directory for JSONL audit files. Empty keeps audit in memory.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// RetentionDays is how many days of audit files to keep.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,gt=0"`
}

// SetDefaults fills unset optional fields.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Confirmation.Timeout == "" {
		c.Confirmation.Timeout = confirm.DefaultTimeout.String()
	}
	if c.Confirmation.Store == "" {
		c.Confirmation.Store = "memory"
	}
	if c.Page.SoftCap == 0 {
		c.Page.SoftCap = page.DefaultSoftCap
	}
}

// Tokens converts the configured tokens into domain tokens.
func (c *Config) Tokens() ([]*identity.Token, error) {
	tokens := make([]*identity.Token, 0, len(c.Identity.Tokens))
	for _, tc := range c.Identity.Tokens {
		t := &identity.Token{
			Hash:       tc.Hash,
			Subject:    tc.Subject,
			Username:   tc.Username,
			Email:      tc.Email,
			Department: tc.Department,
			Roles:      tc.Roles,
			Revoked:    tc.Revoked,
		}
		if tc.ExpiresAt != "" {
			exp, err := time.Parse(time.RFC3339, tc.ExpiresAt)
			if err != nil {
				return nil, err
			}
			t.ExpiresAt = &exp
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// Grants converts the configured grants into domain grants.
func (c *Config) Grants() []policy.Grant {
	grants := make([]policy.Grant, 0, len(c.Policy.Grants))
	for _, gc := range c.Policy.Grants {
		grants = append(grants, policy.Grant{
			Role:      gc.Role,
			Domain:    gc.Domain,
			Tool:      gc.Tool,
			Class:     tool.Class(gc.Class),
			Condition: gc.Condition,
		})
	}
	return grants
}

// ConfirmationTimeout parses the confirmation timeout.
func (c *Config) ConfirmationTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Confirmation.Timeout)
}

// SweepInterval parses the janitor interval; zero means disabled.
func (c *Config) SweepInterval() (time.Duration, error) {
	if c.Confirmation.SweepInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Confirmation.SweepInterval)
}

// ShutdownTimeout parses the server shutdown timeout.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.ShutdownTimeout)
}
