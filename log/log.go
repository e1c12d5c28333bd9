package log

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used throughout the library. Components
// accept a Logger via options and default to the noop implementation, so
// embedding applications only see output when they wire a logger in.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that always carries the given fields.
	With(fields ...Field) Logger

	// Named adds a name segment to the logger's path.
	Named(name string) Logger

	// Sync flushes any buffered log entries.
	Sync() error
}

// Field is a strongly typed key-value pair attached to a log entry.
type Field struct {
	zap zap.Field
}

// Key returns the field's key.
func (f Field) Key() string {
	return f.zap.Key
}

// Field constructors.

func String(key, val string) Field {
	return Field{zap.String(key, val)}
}

func Int(key string, val int) Field {
	return Field{zap.Int(key, val)}
}

func Int64(key string, val int64) Field {
	return Field{zap.Int64(key, val)}
}

func Float64(key string, val float64) Field {
	return Field{zap.Float64(key, val)}
}

func Bool(key string, val bool) Field {
	return Field{zap.Bool(key, val)}
}

func Duration(key string, val time.Duration) Field {
	return Field{zap.Duration(key, val)}
}

func Err(err error) Field {
	return Field{zap.Error(err)}
}

func Any(key string, val any) Field {
	return Field{zap.Any(key, val)}
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = f.zap
	}

	return out
}

// =============================================================================
// ZAP-BACKED LOGGER
// =============================================================================

type logger struct {
	zap *zap.Logger
}

// NewProductionLogger creates a JSON logger at info level.
func NewProductionLogger() Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	zl, _ := cfg.Build(zap.AddCallerSkip(1))

	return &logger{zap: zl}
}

// NewDevelopmentLogger creates a console logger at debug level.
func NewDevelopmentLogger() Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	zl, _ := cfg.Build(zap.AddCallerSkip(1))

	return &logger{zap: zl}
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(zl *zap.Logger) Logger {
	return &logger{zap: zl}
}

func (l *logger) Debug(msg string, fields ...Field) {
	l.zap.Debug(msg, zapFields(fields)...)
}

func (l *logger) Info(msg string, fields ...Field) {
	l.zap.Info(msg, zapFields(fields)...)
}

func (l *logger) Warn(msg string, fields ...Field) {
	l.zap.Warn(msg, zapFields(fields)...)
}

func (l *logger) Error(msg string, fields ...Field) {
	l.zap.Error(msg, zapFields(fields)...)
}

func (l *logger) With(fields ...Field) Logger {
	return &logger{zap: l.zap.With(zapFields(fields)...)}
}

func (l *logger) Named(name string) Logger {
	return &logger{zap: l.zap.Named(name)}
}

func (l *logger) Sync() error {
	return l.zap.Sync()
}

// =============================================================================
// NOOP LOGGER
// =============================================================================

type noopLogger struct{}

// NewNoopLogger creates a logger that discards everything.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(string, ...Field)    {}
func (noopLogger) Info(string, ...Field)     {}
func (noopLogger) Warn(string, ...Field)     {}
func (noopLogger) Error(string, ...Field)    {}
func (noopLogger) With(...Field) Logger      { return noopLogger{} }
func (noopLogger) Named(string) Logger       { return noopLogger{} }
func (noopLogger) Sync() error               { return nil }
