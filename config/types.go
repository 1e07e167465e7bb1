package config

// RPC groups the JSON-RPC listener settings.
type RPC struct {
	// AuthTokenEnv names the environment variable holding the bearer
	// token required by mutating methods.
	AuthTokenEnv string `toml:"AuthTokenEnv"`
	// AllowInsecureAuth serves mutating methods without a bearer token.
	// Development only.
	AllowInsecureAuth bool `toml:"AllowInsecureAuth"`
	// TrustProxyHeaders reads the client source from X-Forwarded-For.
	// Enable only behind a proxy that strips inbound copies.
	TrustProxyHeaders  bool     `toml:"TrustProxyHeaders"`
	TrustedProxies     []string `toml:"TrustedProxies"`
	RateLimitPerSecond float64  `toml:"RateLimitPerSecond"`
	RateLimitBurst     int      `toml:"RateLimitBurst"`
	// EventBuffer is the per-subscriber queue length for /ws/events.
	EventBuffer int `toml:"EventBuffer"`
}

// Log groups the rotating-file settings. An empty File logs to stdout.
type Log struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// OTLP groups the OpenTelemetry exporter settings.
type OTLP struct {
	Enabled  bool   `toml:"Enabled"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers is a comma-separated key=value list forwarded to the
	// collector.
	Headers string `toml:"Headers"`
	Metrics bool   `toml:"Metrics"`
	Traces  bool   `toml:"Traces"`
}

// Sale groups ledger-side operational defaults.
type Sale struct {
	// AntiBotSlotSeconds is applied when a security configuration update
	// omits the slot width.
	AntiBotSlotSeconds uint64 `toml:"AntiBotSlotSeconds"`
}

// PriceFeed groups the external oracle settings for feed-mode pricing.
// Disabled means feed-mode purchases fail until a feed is wired.
type PriceFeed struct {
	Enabled bool `toml:"Enabled"`
	// URL points at an oracle endpoint serving
	// {"price":"<decimal>","observedAt":"<RFC3339>"}.
	URL string `toml:"URL"`
	// StaticPrice pins the usd-per-native rate (1e26 scale) instead of
	// polling an oracle. URL takes precedence when both are set.
	StaticPrice string `toml:"StaticPrice"`
	// MaxQuoteAgeSeconds rejects observations older than this. Zero
	// disables the staleness guard.
	MaxQuoteAgeSeconds uint64 `toml:"MaxQuoteAgeSeconds"`
	// MaxDeviationBps rejects quotes moving more than this from the last
	// accepted one. Zero disables the deviation guard.
	MaxDeviationBps uint32 `toml:"MaxDeviationBps"`
}
