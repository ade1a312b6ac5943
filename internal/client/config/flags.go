package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-d", "-k", "-log", "-r", "-t", "-i"},
		"-l", "-debug")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BaseURL, "a", cfg.BaseURL, "backend base URL")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database")
	fs.StringVar(&cfg.SecretKey, "k", cfg.SecretKey, "secret used to seal stored credentials")
	fs.BoolVar(&cfg.LogRequests, "l", cfg.LogRequests, "log requests")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging")
	fs.StringVar(&cfg.LogBackend, "log", cfg.LogBackend, "logging backend (slog, slog-json, zap)")
	fs.IntVar(&cfg.RetryCount, "r", cfg.RetryCount, "transient retry count")
	flushInterval := fs.Int("t", int(cfg.TelemetryFlushInterval.Seconds()), "telemetry flush interval (in seconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.TelemetryFlushInterval = time.Duration(*flushInterval) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
