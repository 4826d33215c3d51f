// Package logging provides the leveled logger used across sid's daemon,
// worker, and CLI processes.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger with the key-value calling
// convention used throughout the daemon: Debug/Info/Warn/Error take a
// message followed by alternating key, value pairs.
type Logger struct {
	sugar *zap.SugaredLogger
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel mirrors zapcore.Level so callers don't need to import zap.
type LogLevel int

const (
	LevelDebug LogLevel = LogLevel(zapcore.DebugLevel)
	LevelInfo  LogLevel = LogLevel(zapcore.InfoLevel)
	LevelWarn  LogLevel = LogLevel(zapcore.WarnLevel)
	LevelError LogLevel = LogLevel(zapcore.ErrorLevel)
)

// Config holds logging configuration.
type Config struct {
	Level LogLevel
	JSON  bool // false = console encoding, true = JSON encoding
}

// DefaultConfig returns a sensible default configuration: info level,
// human-readable console encoding to stderr.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, JSON: false}
}

// NewLogger builds a Logger from the given config (nil for defaults).
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if config.JSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.Level(config.Level))
	base := zap.New(core, zap.AddCaller())

	return &Logger{sugar: base.Sugar()}
}

// Default returns the process-wide default logger, creating it on first use.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() {
	if l == nil || l.sugar == nil {
		return
	}
	_ = l.sugar.Sync()
}

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// With returns a child logger carrying the given key-value pairs on
// every subsequent call; used to scope logs to a worker id or device.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{sugar: l.sugar.With(args...)}
}

// Global convenience functions operating on the default logger.

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
