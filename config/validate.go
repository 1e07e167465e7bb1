package config

import (
	"fmt"
	"math/big"
	"strings"
)

// ValidateConfig rejects configurations the daemon cannot serve safely.
func ValidateConfig(cfg *Config) error {
	if cfg.ListenAddress == "" {
		return fmt.Errorf("rpc: ListenAddress required")
	}
	if cfg.RPC.RateLimitPerSecond <= 0 {
		return fmt.Errorf("rpc: RateLimitPerSecond must be positive")
	}
	if cfg.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive")
	}
	if cfg.RPC.EventBuffer <= 0 {
		return fmt.Errorf("rpc: EventBuffer must be positive")
	}
	if cfg.RPC.AllowInsecureAuth && cfg.RPC.AuthTokenEnv == "" {
		return fmt.Errorf("rpc: AllowInsecureAuth without AuthTokenEnv leaves no way to re-enable auth")
	}
	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation settings must be non-negative")
	}
	if cfg.OTLP.Enabled && cfg.OTLP.Endpoint == "" {
		return fmt.Errorf("otlp: Endpoint required when enabled")
	}
	if cfg.PriceFeed.Enabled {
		url := strings.TrimSpace(cfg.PriceFeed.URL)
		static := strings.TrimSpace(cfg.PriceFeed.StaticPrice)
		if url == "" && static == "" {
			return fmt.Errorf("pricefeed: URL or StaticPrice required when enabled")
		}
		if static != "" {
			price, ok := new(big.Int).SetString(static, 10)
			if !ok || price.Sign() <= 0 {
				return fmt.Errorf("pricefeed: StaticPrice must be a positive integer")
			}
		}
	}
	return nil
}
