package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/mohammad-safakhou/lifeos/config"
)

func TestNewHonoursLevel(t *testing.T) {
	logger, err := New(config.GeneralConfig{LogLevel: "warn"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewDebugOverridesLevel(t *testing.T) {
	logger, err := New(config.GeneralConfig{LogLevel: "error", Debug: true})
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.GeneralConfig{LogLevel: "loud"})
	require.Error(t, err)
}
