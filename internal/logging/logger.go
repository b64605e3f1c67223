/**
 * Structured logging for the document-processing engine.
 *
 * Thin leveled wrapper around zap.SugaredLogger so callers use the same
 * Info/Warn/Error/Debug(msg, keysAndValues...) shape regardless of backend.
 */

package logging

import (
	"go.uber.org/zap"
)

// Logger provides structured, leveled logging for the engine.
type Logger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewLogger creates a new logger tagged with a component prefix.
func NewLogger(prefix string) *Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{
		prefix: prefix,
		sugar:  base.Sugar().Named(prefix),
	}
}

// NewDevelopmentLogger creates a logger with human-readable console output,
// intended for local runs and tests.
func NewDevelopmentLogger(prefix string) *Logger {
	base, err := zap.NewDevelopment()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{
		prefix: prefix,
		sugar:  base.Sugar().Named(prefix),
	}
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// With returns a child logger that always includes the given key-value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		prefix: l.prefix,
		sugar:  l.sugar.With(keysAndValues...),
	}
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
