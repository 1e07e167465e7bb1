package salegateway

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// AuthConfig tunes JWT validation for operator endpoints. The HMAC secret
// is resolved from the environment so it never lands in the config file.
type AuthConfig struct {
	Issuer    string   `yaml:"issuer"`
	Audience  string   `yaml:"audience"`
	SecretEnv string   `yaml:"secret_env"`
	ClockSkew Duration `yaml:"clock_skew"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

// Config captures runtime configuration for the sale gateway.
type Config struct {
	ListenAddress    string          `yaml:"listen"`
	DatabasePath     string          `yaml:"database"`
	ReceiptsPath     string          `yaml:"receipts"`
	ReconDir         string          `yaml:"recon_dir"`
	NodeURL          string          `yaml:"node_url"`
	NodeTokenEnv     string          `yaml:"node_token_env"`
	OperatorAddress  string          `yaml:"operator_address"`
	WebhookSecretEnv string          `yaml:"webhook_secret_env"`
	InvoiceTTL       Duration        `yaml:"invoice_ttl"`
	Auth             AuthConfig      `yaml:"auth"`
	Telemetry        TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8081"
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		c.DatabasePath = "salegateway.db"
	}
	if strings.TrimSpace(c.ReceiptsPath) == "" {
		c.ReceiptsPath = "salegateway-receipts.db"
	}
	if strings.TrimSpace(c.ReconDir) == "" {
		c.ReconDir = "recon"
	}
	if strings.TrimSpace(c.NodeTokenEnv) == "" {
		c.NodeTokenEnv = "SALE_RPC_TOKEN"
	}
	if strings.TrimSpace(c.WebhookSecretEnv) == "" {
		c.WebhookSecretEnv = "SALE_GATEWAY_WEBHOOK_SECRET"
	}
	if strings.TrimSpace(c.Auth.SecretEnv) == "" {
		c.Auth.SecretEnv = "SALE_GATEWAY_JWT_SECRET"
	}
	if c.InvoiceTTL.Duration <= 0 {
		c.InvoiceTTL.Duration = 24 * time.Hour
	}
	if c.Auth.ClockSkew.Duration <= 0 {
		c.Auth.ClockSkew.Duration = 2 * time.Minute
	}
}

// Validate rejects configurations that cannot produce a working gateway.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.NodeURL) == "" {
		return fmt.Errorf("node_url is required")
	}
	if strings.TrimSpace(c.OperatorAddress) == "" {
		return fmt.Errorf("operator_address is required")
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.Auth.Audience) == "" {
		return fmt.Errorf("auth.audience is required")
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry.endpoint is required when enabled")
	}
	return nil
}

// NodeToken resolves the daemon bearer token from the environment.
func (c *Config) NodeToken() string {
	return strings.TrimSpace(os.Getenv(c.NodeTokenEnv))
}

// WebhookSecret resolves the provider HMAC secret from the environment.
func (c *Config) WebhookSecret() string {
	return strings.TrimSpace(os.Getenv(c.WebhookSecretEnv))
}

// AuthSecret resolves the JWT HMAC secret from the environment.
func (c *Config) AuthSecret() string {
	return strings.TrimSpace(os.Getenv(c.Auth.SecretEnv))
}
