// package config loads application configuration from a TOML file, with a
// small set of environment overrides for deployment.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig     `toml:"server"`
	Database  DatabaseConfig   `toml:"database"`
	Auth      AuthConfig       `toml:"auth"`
	Sync      SyncConfig       `toml:"sync"`
	Cache     CacheConfig      `toml:"cache"`
	Retry     RetryConfig      `toml:"retry"`
	Providers []ProviderConfig `toml:"providers"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// DatabaseConfig contains sqlite settings.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// AuthConfig contains JWT settings.
type AuthConfig struct {
	Secret   string `toml:"secret"`
	Issuer   string `toml:"issuer"`
	TTLHours int    `toml:"ttl_hours"`
}

// SyncConfig bounds the fetch orchestrator.
type SyncConfig struct {
	Workers         int      `toml:"workers"`          // global worker pool size
	DeadlineSeconds int      `toml:"deadline_seconds"` // per-orchestration deadline
	Series          []string `toml:"series"`           // series keys for cmd/sync
}

// CacheConfig controls the provider response cache.
type CacheConfig struct {
	TTLSeconds         int `toml:"ttl_seconds"`
	NegativeTTLSeconds int `toml:"negative_ttl_seconds"` // 0 disables negative caching
}

// RetryConfig is the provider client backoff policy.
type RetryConfig struct {
	BaseDelayMillis int     `toml:"base_delay_millis"`
	Factor          float64 `toml:"factor"`
	MaxDelayMillis  int     `toml:"max_delay_millis"`
	MaxAttempts     int     `toml:"max_attempts"`
}

// ProviderConfig describes one upstream catalog provider. The order of
// [[providers]] blocks in the file is the field-precedence order used by
// reconciliation: earlier providers win ties.
type ProviderConfig struct {
	Name       string  `toml:"name"`
	BaseURL    string  `toml:"base_url"`
	APIKey     string  `toml:"api_key"`
	RateBurst  int     `toml:"rate_burst"`   // token bucket capacity
	RatePerSec float64 `toml:"rate_per_sec"` // refill rate
}

// Deadline returns the per-orchestration deadline as a duration.
func (c SyncConfig) Deadline() time.Duration {
	if c.DeadlineSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.DeadlineSeconds) * time.Second
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// NegativeTTL returns the negative-cache TTL; zero means disabled.
func (c CacheConfig) NegativeTTL() time.Duration {
	return time.Duration(c.NegativeTTLSeconds) * time.Second
}

// JWTDuration returns the token lifetime.
func (c AuthConfig) JWTDuration() time.Duration {
	if c.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

// Load reads and parses a TOML configuration file, then applies environment
// overrides (COMICSHELF_DB_PATH, COMICSHELF_JWT_SECRET, COMICSHELF_ADDR).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	return &cfg, nil
}

// Default returns the embedded example configuration with env overrides.
func Default() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("parse embedded default config: %v", err))
	}
	cfg.applyEnv()
	return &cfg
}

func (c *Config) applyEnv() {
	if p := os.Getenv("COMICSHELF_DB_PATH"); p != "" {
		c.Database.Path = p
	}
	if s := os.Getenv("COMICSHELF_JWT_SECRET"); s != "" {
		c.Auth.Secret = s
	}
	if a := os.Getenv("COMICSHELF_ADDR"); a != "" {
		c.Server.Addr = a
	}
}
