// Command sid is the daemon: it accepts connections on a unix socket,
// dispatches commands against the authoritative KV store, and forks
// internal workers to run SCAN in isolation (spec.md §2, §4.6, §5).
//
// Re-exec'd with -worker-loop, the same binary instead runs a worker's
// event loop (internal/bridge.RunWorkerLoop) against the channel fds
// its parent set up before fork/exec — the teacher's single-binary,
// dual-role pattern.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sidproject/sid/internal/bridge"
	"github.com/sidproject/sid/internal/config"
	"github.com/sidproject/sid/internal/logging"
)

func main() {
	if isWorkerLoop(os.Args[1:]) {
		runWorker()
		return
	}
	runDaemon()
}

// isWorkerLoop checks for -worker-loop directly rather than through the
// package flag.CommandLine, since the daemon's own flags (registered by
// config.ParseFlags) would otherwise collide with it on the same set.
func isWorkerLoop(args []string) bool {
	for _, a := range args {
		if a == "-worker-loop" || a == "--worker-loop" {
			return true
		}
	}
	return false
}

func runWorker() {
	log := logging.Default()
	if err := bridge.RunWorkerLoop(); err != nil {
		log.Error("worker loop exited with error", "error", err)
		os.Exit(1)
	}
}

func runDaemon() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		os.Exit(2)
	}

	logLevel := logging.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = logging.LevelDebug
	case "warn":
		logLevel = logging.LevelWarn
	case "error":
		logLevel = logging.LevelError
	}
	logger := logging.NewLogger(&logging.Config{Level: logLevel, JSON: cfg.LogJSON})
	logging.SetDefault(logger)
	defer logger.Sync()

	b, err := bridge.New(cfg)
	if err != nil {
		logger.Error("failed to initialize bridge", "error", err)
		os.Exit(1)
	}

	l, err := b.Listen(cfg.SocketPath)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		l.Close()
		if err := b.Checkpoint(); err != nil {
			logger.Error("checkpoint on shutdown failed", "error", err)
		}
		if err := b.Close(); err != nil {
			logger.Error("resource tree shutdown failed", "error", err)
		}
		os.Exit(0)
	}()

	logger.Info("sid daemon ready", "socket", cfg.SocketPath, "dbgen", b.DBGen(), "bootid", b.BootID())
	if err := b.Serve(l); err != nil {
		logger.Info("serve loop exited", "error", err)
	}
}
