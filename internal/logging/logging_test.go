package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"ERROR", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("json logger", func(t *testing.T) {
		logger, err := New("info", "json")
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("console logger at debug", func(t *testing.T) {
		logger, err := New("debug", "console")
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := New("info", "xml")
		assert.Error(t, err)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := New("loud", "json")
		assert.Error(t, err)
	})
}
