// Package logger is the process-wide diagnostic logger. Every call is scoped to
// a component name ("hub", "agent", "bridge", ...) and may carry structured
// fields. It is backed by zap.
//
// This is not the operator-facing log: those are LogEvent messages on the hub.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how diagnostics are written.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File redirects output to a file instead of stderr.
	File string
	// Console selects the human-readable encoder instead of JSON.
	Console bool
}

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newDefault()
)

func newDefault() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Configure replaces the process logger.
func Configure(opts Options) error {
	lvl := zapcore.InfoLevel
	if opts.Level != "" {
		if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
			return fmt.Errorf("logger: unknown level %q", opts.Level)
		}
	}

	var cfg zap.Config
	if opts.Console {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	atom := zap.NewAtomicLevelAt(lvl)
	cfg.Level = atom

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("logger: create log dir: %w", err)
		}
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("logger: build: %w", err)
	}

	mu.Lock()
	old := base
	base = l
	level = atom
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// SetLevel changes the minimum level of the current logger. Unknown levels
// fall back to info.
func SetLevel(name string) {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		WarnCF("logger", "Unknown log level, defaulting to info", map[string]interface{}{"level": name})
		lvl = zapcore.InfoLevel
	}
	mu.RLock()
	level.SetLevel(lvl)
	mu.RUnlock()
}

// Discard silences all diagnostics. Used by tests and one-shot subcommands.
func Discard() {
	mu.Lock()
	base = zap.NewNop()
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func toFields(component string, fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.String("component", component))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

func DebugC(component, msg string) { current().Debug(msg, toFields(component, nil)...) }
func InfoC(component, msg string)  { current().Info(msg, toFields(component, nil)...) }
func WarnC(component, msg string)  { current().Warn(msg, toFields(component, nil)...) }
func ErrorC(component, msg string) { current().Error(msg, toFields(component, nil)...) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	current().Debug(msg, toFields(component, fields)...)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	current().Info(msg, toFields(component, fields)...)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	current().Warn(msg, toFields(component, fields)...)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	current().Error(msg, toFields(component, fields)...)
}
