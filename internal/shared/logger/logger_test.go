package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	l, err := New("mirror-service", "local", "")
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New("mirror-service", "prod", "")
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New("mirror-service", "prod", "warn")
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))

	_, err = New("mirror-service", "prod", "loud")
	require.Error(t, err)
}
