package log

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]zap.AtomicLevel{
		"":      zap.NewAtomicLevelAt(zap.InfoLevel),
		"debug": zap.NewAtomicLevelAt(zap.DebugLevel),
		"warn":  zap.NewAtomicLevelAt(zap.WarnLevel),
		"loud":  zap.NewAtomicLevelAt(zap.InfoLevel),
	}
	for in, want := range cases {
		l, err := New(in)
		require.NoError(t, err, in)
		require.True(t, l.Core().Enabled(want.Level()), in)
		if want.Level() > zap.DebugLevel {
			require.False(t, l.Core().Enabled(want.Level()-1), in)
		}
	}
}

func TestMust(t *testing.T) {
	require.NotPanics(t, func() { Must("error").Info("dropped") })
}
