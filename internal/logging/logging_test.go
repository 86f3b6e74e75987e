package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	quiet, err := New(Options{JSON: true})
	require.NoError(t, err)
	assert.False(t, quiet.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, quiet.Desugar().Core().Enabled(zapcore.InfoLevel))

	verbose, err := New(Options{Verbose: true, JSON: true})
	require.NoError(t, err)
	assert.True(t, verbose.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	require.NotNil(t, l)
	l.Infow("discarded", "k", "v")
}
