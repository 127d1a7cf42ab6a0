// Package logger wraps hclog behind the same package-level Info/Warn/
// Error/Debug surface used throughout this codebase, so callers that don't
// hold a *hclog.Logger reference (error helpers, middleware) can still log
// with leveled key/value pairs instead of formatting strings by hand.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/pluginhost/pluginhostd/internal/config"
)

var (
	base hclog.Logger
	once sync.Once
)

func get() hclog.Logger {
	once.Do(func() {
		base = New(config.Get().Logging)
	})
	return base
}

// New builds a root logger from a LoggingConfig. Init calls this once at
// startup with the loaded config and replaces the package default.
func New(cfg config.LoggingConfig) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:            "pluginhostd",
		Level:           hclog.LevelFromString(cfg.Level),
		Output:          os.Stderr,
		JSONFormat:      cfg.JSON,
		IncludeLocation: cfg.Level == "debug" || cfg.Level == "trace",
		DisableTime:     !cfg.EnableTime,
	})
}

// Init replaces the package-wide root logger. Call it once at startup
// after loading config; packages that already captured a Named() child
// before Init runs keep logging through the pre-Init default.
func Init(cfg config.LoggingConfig) {
	base = New(cfg)
}

// Named returns a child logger scoped to name, for packages that want a
// stable logger reference instead of going through the package functions
// on every call.
func Named(name string) hclog.Logger {
	return get().Named(name)
}

func Debug(msg string, kv ...interface{}) { get().Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { get().Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { get().Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { get().Error(msg, kv...) }
