// Package logger provides the process-wide structured logger built on zap.
//
// Components accept a [Logger] via functional options and fall back to
// [Default] when none is supplied. The binary entrypoint installs the real
// logger once at startup:
//
//	logger.SetDefault(logger.MustProduction())
//	defer logger.SyncDefault()
//
// Until SetDefault is called the default logger discards everything, which
// keeps library code and tests quiet.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

// Logger is the structured logging contract used across the project.
// Key-value pairs follow the zap sugared convention: alternating string
// keys and arbitrary values.
type Logger interface {
	// With returns a child logger with the given key-value pairs attached
	// to every subsequent message.
	With(kv ...any) Logger

	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Compile-time interface check.
var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

// Sync flushes buffered log entries. Not part of [Logger]; reached through
// [SyncDefault] on the process logger.
func (l *zapLogger) Sync() error { return l.s.Sync() }

// New wraps an existing zap logger.
func New(z *zap.Logger) Logger {
	return &zapLogger{s: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// MustProduction returns a JSON logger at info level. Panics if zap fails to
// build, which only happens with a broken config.
func MustProduction() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return New(z)
}

// MustDevelopment returns a human-readable console logger at debug level.
func MustDevelopment() Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return New(z)
}

// Nop returns a logger that discards all messages.
func Nop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

// ---------------------------------------------------------------------------
// Process default
// ---------------------------------------------------------------------------

var (
	defaultMu sync.RWMutex
	defaultL  Logger = Nop()
)

// Default returns the process-wide logger.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultL
}

// SetDefault installs the process-wide logger.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultL = l
}

// SyncDefault flushes the process-wide logger. Sync errors are ignored;
// syncing stderr is not supported on all platforms.
func SyncDefault() {
	l := Default()
	if s, ok := l.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

// Fatal logs a message on the process-wide logger and exits with status 1.
func Fatal(msg string, kv ...any) {
	l := Default()
	if z, ok := l.(*zapLogger); ok {
		z.s.Fatalw(msg, kv...)
		return
	}
	l.Error(msg, kv...)
	SyncDefault()
	os.Exit(1)
}
