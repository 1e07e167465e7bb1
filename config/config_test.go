package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.ListenAddress != ":8545" {
		t.Fatalf("listen address = %q", cfg.ListenAddress)
	}
	if cfg.RPC.AuthTokenEnv != "SALE_RPC_TOKEN" {
		t.Fatalf("auth token env = %q", cfg.RPC.AuthTokenEnv)
	}
	if cfg.RPC.RateLimitPerSecond != 10 || cfg.RPC.RateLimitBurst != 20 {
		t.Fatalf("rate limits = %v/%d", cfg.RPC.RateLimitPerSecond, cfg.RPC.RateLimitBurst)
	}
	if cfg.Sale.AntiBotSlotSeconds != 3 {
		t.Fatalf("slot seconds = %d", cfg.Sale.AntiBotSlotSeconds)
	}

	// A second load round-trips the persisted defaults.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(again, cfg) {
		t.Fatalf("reload mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "0.0.0.0:9000"
MetricsAddress = ":9200"
DataDir = "/var/lib/sale"
Environment = "staging"

[RPC]
AuthTokenEnv = "CUSTOM_TOKEN"
TrustProxyHeaders = true
TrustedProxies = ["10.0.0.1"]
RateLimitPerSecond = 2.5
RateLimitBurst = 5
EventBuffer = 128

[Log]
File = "/var/log/saled.log"
MaxSizeMB = 32
MaxBackups = 4
MaxAgeDays = 14

[OTLP]
Enabled = true
Endpoint = "collector:4318"
Insecure = true
Headers = "x-team=sale"
Traces = true

[Sale]
AntiBotSlotSeconds = 5
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9000" || cfg.MetricsAddress != ":9200" {
		t.Fatalf("addresses = %q / %q", cfg.ListenAddress, cfg.MetricsAddress)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("environment = %q", cfg.Environment)
	}
	if !cfg.RPC.TrustProxyHeaders || len(cfg.RPC.TrustedProxies) != 1 {
		t.Fatalf("proxy settings = %+v", cfg.RPC)
	}
	if cfg.RPC.RateLimitPerSecond != 2.5 || cfg.RPC.RateLimitBurst != 5 {
		t.Fatalf("rate limits = %v/%d", cfg.RPC.RateLimitPerSecond, cfg.RPC.RateLimitBurst)
	}
	if cfg.Log.File != "/var/log/saled.log" || cfg.Log.MaxSizeMB != 32 {
		t.Fatalf("log settings = %+v", cfg.Log)
	}
	if !cfg.OTLP.Enabled || cfg.OTLP.Endpoint != "collector:4318" || !cfg.OTLP.Traces {
		t.Fatalf("otlp settings = %+v", cfg.OTLP)
	}
	if cfg.Sale.AntiBotSlotSeconds != 5 {
		t.Fatalf("slot seconds = %d", cfg.Sale.AntiBotSlotSeconds)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = ":8545"
LegacyOracleURL = "http://oracle"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "LegacyOracleURL") {
		t.Fatalf("err = %v, want unknown key rejection", err)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	cfg := base()
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	cfg = base()
	cfg.RPC.RateLimitPerSecond = 0
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("zero rate limit accepted")
	}

	cfg = base()
	cfg.OTLP.Enabled = true
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("otlp without endpoint accepted")
	}

	cfg = base()
	cfg.Log.MaxBackups = -1
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("negative rotation accepted")
	}

	cfg = base()
	cfg.RPC.AllowInsecureAuth = true
	cfg.RPC.AuthTokenEnv = ""
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("insecure auth without token env accepted")
	}

	cfg = base()
	cfg.PriceFeed.Enabled = true
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("enabled feed without source accepted")
	}

	cfg = base()
	cfg.PriceFeed.Enabled = true
	cfg.PriceFeed.StaticPrice = "-5"
	if err := ValidateConfig(cfg); err == nil {
		t.Fatal("negative static price accepted")
	}

	cfg = base()
	cfg.PriceFeed.Enabled = true
	cfg.PriceFeed.StaticPrice = "2000000000000000000000000"
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("valid static feed rejected: %v", err)
	}
}

func TestPriceFeedDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.PriceFeed.Enabled = true
	applyDefaults(cfg)
	if cfg.PriceFeed.MaxQuoteAgeSeconds != 300 {
		t.Fatalf("quote age default = %d", cfg.PriceFeed.MaxQuoteAgeSeconds)
	}

	disabled := &Config{}
	applyDefaults(disabled)
	if disabled.PriceFeed.MaxQuoteAgeSeconds != 0 {
		t.Fatalf("disabled feed must keep zero age, got %d", disabled.PriceFeed.MaxQuoteAgeSeconds)
	}
}
