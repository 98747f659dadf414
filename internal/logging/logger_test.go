package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestNewLogger tests logger construction
func TestNewLogger(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		logger, err := New(DefaultConfig())
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("RotatedFile", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Format = "json"
		cfg.Level = "debug"
		cfg.OutputPath = filepath.Join(t.TempDir(), "logs", "mate.log")

		logger, err := New(cfg)
		require.NoError(t, err)

		WithComponent(logger, "test").Debug("hello", zap.String("key", "value"))
		require.NoError(t, logger.Sync())

		data, err := os.ReadFile(cfg.OutputPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"hello"`)
		assert.Contains(t, string(data), `"component":"test"`)
		assert.Contains(t, string(data), `"service":"mate"`)
	})

	t.Run("Sampling", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Sampling.Enabled = true
		_, err := New(cfg)
		assert.NoError(t, err)
	})
}

// TestConfigValidate tests rejected settings
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad level", func(c *Config) { c.Level = "loud" }},
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"empty output", func(c *Config) { c.OutputPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}
