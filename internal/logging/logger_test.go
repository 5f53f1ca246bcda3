package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_DevelopmentAndProduction(t *testing.T) {
	t.Parallel()

	dev, err := New("newswire", true)
	require.NoError(t, err)
	require.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	prod, err := New("newswire", false)
	require.NoError(t, err)
	require.False(t, prod.Core().Enabled(zapcore.DebugLevel))
	require.True(t, prod.Core().Enabled(zapcore.InfoLevel))
}
