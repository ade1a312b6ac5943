// Package config loads runtime configuration for the marketplace client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   backend base URL
//	-d string   path of the local SQLite database
//	-k string   secret used to seal stored credentials
//	-l          log every request passing through the pipeline
//	-debug      enable debug logging
//	-log string logging backend: slog, slog-json or zap
//	-r int      transient retry count
//	-t int      telemetry flush interval (seconds)
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be either strings like "3s" or
// integer nanoseconds. Keys missing from the file keep their current value:
//
//	{
//	  "base_url": "https://api.example.com",
//	  "database_path": "/var/lib/marketkeeper/market.db",
//	  "log_requests": true,
//	  "request_timeout": "30s",
//	  "cache_staleness": "168h",
//	  "telemetry_flush_interval": "30s",
//	  "online_check_interval": "3s"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
