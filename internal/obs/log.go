// Package obs bundles the observability concerns shared by every binary:
// structured logging and Prometheus metrics.
package obs

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.Mutex
	logger   *zap.Logger
)

// InitLogger builds the shared zap logger. environment "dev" selects the
// human-readable development encoder; anything else emits production JSON.
func InitLogger(environment, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if environment == "dev" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	return l, nil
}

// Logger returns the shared logger, falling back to a no-op logger before
// InitLogger has run (keeps tests quiet).
func Logger() *zap.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Sync flushes buffered log entries; call on shutdown.
func Sync() {
	loggerMu.Lock()
	l := logger
	loggerMu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}
