// Package sflog provides the package-global zap logger used across sshvfs,
// modeled on shellcn's pkg/logger.
package sflog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

func init() {
	global = zap.NewNop()
}

// Init replaces the global logger with one at the given level ("debug",
// "info", "warn", "error"). An unparseable level falls back to info.
func Init(level string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// Logger returns the current global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes the global logger's buffered entries.
func Sync() error {
	return Logger().Sync()
}

// Named returns the global logger scoped to a component name. The library's
// subsystems do not call it; they log through the *zap.Logger their caller
// passes in.
func Named(name string) *zap.Logger {
	return Logger().Named(name)
}
