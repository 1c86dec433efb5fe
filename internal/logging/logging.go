// Package logging holds the process-wide structured logger.
package logging

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = logr.Discard()
	zlog   *zap.Logger
)

// Init replaces the global logger with a zap-backed one.
func Init(development bool) error {
	var (
		z   *zap.Logger
		err error
	)
	if development {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	mu.Lock()
	zlog = z
	logger = zapr.NewLogger(z)
	mu.Unlock()
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if zlog != nil {
		_ = zlog.Sync()
	}
}

// Logger returns the global logger
func Logger() logr.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger sets the global logger
func SetLogger(l logr.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Info logs a non-error message with the given key/value pairs as context
func Info(msg string, keysAndValues ...any) {
	Logger().Info(msg, keysAndValues...)
}

// Debug logs a debug message with the given key/value pairs as context
func Debug(msg string, keysAndValues ...any) {
	Logger().V(1).Info(msg, keysAndValues...)
}

// Error logs an error message with the given key/value pairs as context
func Error(err error, msg string, keysAndValues ...any) {
	Logger().Error(err, msg, keysAndValues...)
}

// WithName adds a new element to the logger's name
func WithName(name string) logr.Logger {
	return Logger().WithName(name)
}
