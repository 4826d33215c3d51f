// Package config loads sid's daemon configuration from process flags
// and environment variables, in the teacher's flag+Options-struct style.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every daemon tunable (spec.md §4.6, §5, §6.3).
type Config struct {
	SocketPath   string        // unix socket the event source accepts connections on
	SnapshotPath string        // on-disk snapshot file (spec.md §6.3)
	ModuleDir    string        // on-disk directory of block/type module trees (spec.md §4.6)
	WorkerIdle   time.Duration // idle-worker reap timeout
	WorkerExec   time.Duration // per-command execution timeout (0 = disabled)
	LogJSON      bool
	LogLevel     string // "debug"|"info"|"warn"|"error"
}

// Default returns the out-of-the-box configuration.
func Default() *Config {
	return &Config{
		SocketPath:   "/run/sid/sid.sock",
		SnapshotPath: "/var/lib/sid/sid.db",
		ModuleDir:    "/usr/lib/sid/modules",
		WorkerIdle:   30 * time.Second,
		WorkerExec:   0,
		LogJSON:      false,
		LogLevel:     "info",
	}
}

// ParseFlags builds a Config from Default(), overridden by environment
// variables (SID_*), then by command-line flags parsed from args
// (excluding argv[0]).
func ParseFlags(args []string) (*Config, error) {
	cfg := Default()
	applyEnv(cfg)

	fs := flag.NewFlagSet("sid", flag.ContinueOnError)
	fs.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "unix socket path to accept connections on")
	fs.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "path to the persisted KV snapshot")
	fs.StringVar(&cfg.ModuleDir, "module-dir", cfg.ModuleDir, "directory containing block/type module trees")
	fs.DurationVar(&cfg.WorkerIdle, "worker-idle-timeout", cfg.WorkerIdle, "idle worker reap timeout")
	fs.DurationVar(&cfg.WorkerExec, "worker-exec-timeout", cfg.WorkerExec, "per-command execution timeout, 0 disables")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit JSON-encoded logs instead of console")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SID_SOCKET"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("SID_SNAPSHOT"); v != "" {
		cfg.SnapshotPath = v
	}
	if v := os.Getenv("SID_MODULE_DIR"); v != "" {
		cfg.ModuleDir = v
	}
	if v := os.Getenv("SID_WORKER_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WorkerIdle = d
		}
	}
	if v := os.Getenv("SID_WORKER_EXEC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WorkerExec = d
		}
	}
	if v := os.Getenv("SID_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	if v := os.Getenv("SID_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate reports whether the configuration is usable.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("config: socket path must not be empty")
	}
	if c.SnapshotPath == "" {
		return fmt.Errorf("config: snapshot path must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	return nil
}
