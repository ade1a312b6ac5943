package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/marketkeeper/internal/flagx"
	"github.com/dmitrijs2005/marketkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from a zero value so that a partial file only
// overrides what it names.
type JsonConfig struct {
	BaseURL      *string `json:"base_url"`
	DatabasePath *string `json:"database_path"`
	SecretKey    *string `json:"secret_key"`

	LogRequests *bool   `json:"log_requests"`
	LogBackend  *string `json:"log_backend"`
	Debug       *bool   `json:"debug"`

	RequestTimeout *timex.Duration `json:"request_timeout"`
	RetryCount     *int            `json:"retry_count"`
	CacheStaleness *timex.Duration `json:"cache_staleness"`
	CacheEntries   *int            `json:"cache_entries"`

	TelemetryBatchSize     *int            `json:"telemetry_batch_size"`
	TelemetryMaxBatch      *int            `json:"telemetry_max_batch"`
	TelemetryFlushInterval *timex.Duration `json:"telemetry_flush_interval"`
	TelemetryRetentionCap  *int            `json:"telemetry_retention_cap"`

	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	Workers             *int            `json:"workers"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Without either flag nothing happens. Panics on read or
// unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.BaseURL, jc.BaseURL)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.SecretKey, jc.SecretKey)
	setString(&cfg.LogBackend, jc.LogBackend)

	if jc.LogRequests != nil {
		cfg.LogRequests = *jc.LogRequests
	}
	if jc.Debug != nil {
		cfg.Debug = *jc.Debug
	}

	setInt(&cfg.RetryCount, jc.RetryCount)
	setInt(&cfg.CacheEntries, jc.CacheEntries)
	setInt(&cfg.TelemetryBatchSize, jc.TelemetryBatchSize)
	setInt(&cfg.TelemetryMaxBatch, jc.TelemetryMaxBatch)
	setInt(&cfg.TelemetryRetentionCap, jc.TelemetryRetentionCap)
	setInt(&cfg.Workers, jc.Workers)

	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.CacheStaleness != nil {
		cfg.CacheStaleness = jc.CacheStaleness.Duration
	}
	if jc.TelemetryFlushInterval != nil {
		cfg.TelemetryFlushInterval = jc.TelemetryFlushInterval.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
