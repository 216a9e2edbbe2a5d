package log

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	l, err := New("warn")
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_BadLevelFallsBackToDebug(t *testing.T) {
	l := Must("loud")
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestIdentity_HidesValue(t *testing.T) {
	f := Identity("user", "John@Example.com ")
	require.Equal(t, "user", f.Key)
	require.NotContains(t, f.String, "john")
	require.Len(t, f.String, 16)
	require.Equal(t, f.String, Identity("user", "john@example.com").String)
}
