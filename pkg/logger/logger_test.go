package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithAttachesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.With("component", "cache").Info("opened", "path", "/tmp/x")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "opened", entries[0].Message)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "cache", ctx["component"])
	assert.Equal(t, "/tmp/x", ctx["path"])
}

func TestLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestSetDefaultReplacesProcessLogger(t *testing.T) {
	old := Default()
	defer SetDefault(old)

	core, logs := observer.New(zapcore.InfoLevel)
	SetDefault(New(zap.New(core)))

	Default().Warn("backup prune failed", "error", "disk full")

	require.Len(t, logs.All(), 1)
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestSetDefaultIgnoresNil(t *testing.T) {
	old := Default()
	defer SetDefault(old)

	SetDefault(nil)
	assert.NotNil(t, Default())
}
