package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"chatty", zapcore.InfoLevel},
	} {
		t.Run(tc.level, func(t *testing.T) {
			logger, err := New(tc.level)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tc.expected))
			if tc.expected > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tc.expected-1))
			}
		})
	}
}
