package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
)

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(&config.Config{LogLevel: "debug"})
	require.NoError(t, err)
	assert.True(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger(&config.Config{LogLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger(&config.Config{LogLevel: "loud"})
	assert.Error(t, err)
}
