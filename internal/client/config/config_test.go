package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.BaseURL)
	assert.Equal(t, "market.db", filepath.Base(c.DatabasePath))
	assert.Equal(t, AppName, filepath.Base(filepath.Dir(c.DatabasePath)))
	assert.Equal(t, "slog", c.LogBackend)
	assert.False(t, c.LogRequests)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, 2, c.RetryCount)
	assert.Equal(t, 168*time.Hour, c.CacheStaleness)
	assert.Equal(t, 20, c.TelemetryBatchSize)
	assert.Equal(t, 50, c.TelemetryMaxBatch)
	assert.Equal(t, 30*time.Second, c.TelemetryFlushInterval)
	assert.Equal(t, 5000, c.TelemetryRetentionCap)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 4, c.Workers)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"base_url":    "http://json:1",
		"retry_count": 5,
	})
	os.Args = []string{"testbin", "-c", path, "-a", "http://flag:2"}

	cfg := LoadConfig()

	assert.Equal(t, "http://flag:2", cfg.BaseURL)
	assert.Equal(t, 5, cfg.RetryCount)
}
