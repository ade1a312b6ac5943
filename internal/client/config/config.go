package config

import (
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/filex"
)

// AppName names the per-user data directory.
const AppName = "marketkeeper"

// Config holds runtime settings for the marketplace client core.
//
// Durations are time.Duration values; the JSON loader accepts "30s"-style
// strings for them.
type Config struct {
	BaseURL      string
	DatabasePath string
	SecretKey    string

	LogRequests bool
	LogBackend  string
	Debug       bool

	RequestTimeout time.Duration
	RetryCount     int
	CacheStaleness time.Duration
	CacheEntries   int

	TelemetryBatchSize     int
	TelemetryMaxBatch      int
	TelemetryFlushInterval time.Duration
	TelemetryRetentionCap  int

	OnlineCheckInterval time.Duration
	Workers             int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://127.0.0.1:8080"
	c.DatabasePath = filex.DefaultPath(AppName, "market.db")
	c.SecretKey = "marketkeeper-dev-secret"

	c.LogRequests = false
	c.LogBackend = "slog"
	c.Debug = false

	c.RequestTimeout = 30 * time.Second
	c.RetryCount = 2
	c.CacheStaleness = 7 * 24 * time.Hour
	c.CacheEntries = 512

	c.TelemetryBatchSize = 20
	c.TelemetryMaxBatch = 50
	c.TelemetryFlushInterval = 30 * time.Second
	c.TelemetryRetentionCap = 5000

	c.OnlineCheckInterval = 3 * time.Second
	c.Workers = 4
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
