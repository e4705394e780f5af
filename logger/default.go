package logger

import (
	"io"
	"os"
	"sync/atomic"
)

var defLogger atomic.Pointer[Logger]

func init() {
	SetDefault(New(os.Stderr, WithLevel(InfoLevel)))
}

// SetDefault replaces the package default logger. A nil l is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defLogger.Store(&l)
}

// GetLogger returns the package default logger.
func GetLogger() Logger {
	return *defLogger.Load()
}

// Discard returns a logger that drops every record. Tests use it to keep output quiet.
func Discard() Logger {
	return New(io.Discard, WithFormat(FormatJSON), WithLevel(FatalLevel))
}

func Debug(msg string, keysAndValues ...any) {
	GetLogger().Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	GetLogger().Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	GetLogger().Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	GetLogger().Error(msg, keysAndValues...)
}

func Fatal(msg string, keysAndValues ...any) {
	GetLogger().Fatal(msg, keysAndValues...)
}

func SetLevel(level Level) {
	GetLogger().SetLevel(level)
}

func With(keyValues ...any) Logger {
	return GetLogger().With(keyValues...)
}
