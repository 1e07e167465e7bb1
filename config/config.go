package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration. Missing files are created with
// defaults; unknown keys are rejected so typos fail loudly.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`

	RPC       RPC       `toml:"RPC"`
	Log       Log       `toml:"Log"`
	OTLP      OTLP      `toml:"OTLP"`
	Sale      Sale      `toml:"Sale"`
	PriceFeed PriceFeed `toml:"PriceFeed"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %q", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8545"
	}
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = ":9091"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./sale-data"
	}
	if cfg.RPC.AuthTokenEnv == "" {
		cfg.RPC.AuthTokenEnv = "SALE_RPC_TOKEN"
	}
	if cfg.RPC.RateLimitPerSecond <= 0 {
		cfg.RPC.RateLimitPerSecond = 10
	}
	if cfg.RPC.RateLimitBurst <= 0 {
		cfg.RPC.RateLimitBurst = 20
	}
	if cfg.RPC.EventBuffer <= 0 {
		cfg.RPC.EventBuffer = 64
	}
	if cfg.Sale.AntiBotSlotSeconds == 0 {
		cfg.Sale.AntiBotSlotSeconds = 3
	}
	if cfg.PriceFeed.Enabled && cfg.PriceFeed.MaxQuoteAgeSeconds == 0 {
		cfg.PriceFeed.MaxQuoteAgeSeconds = 300
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// AuthToken resolves the RPC bearer token from the configured environment
// variable. Empty means auth is unavailable.
func (c *Config) AuthToken() string {
	if c == nil || c.RPC.AuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(c.RPC.AuthTokenEnv)
}
