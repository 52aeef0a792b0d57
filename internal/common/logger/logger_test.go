package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"loan-workflow/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNewWithOutputWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.log")

	zl, err := NewWithOutput("info", "json", path)
	require.NoError(t, err)

	log := NewZapAdapter(zl).WithFields(map[string]interface{}{"taskType": "credit-check"})
	log.Info("credit check completed", map[string]interface{}{"score": 700})
	log.Debug("filtered out", nil)
	log.WithError(errors.New("bureau down")).Error("credit check failed", nil)
	require.NoError(t, zl.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"taskType":"credit-check"`)
	assert.Contains(t, string(data), `"score":700`)
	assert.Contains(t, string(data), `"error":"bureau down"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestNoOpAndTestLoggers(t *testing.T) {
	NewNoOpLogger().With(map[string]interface{}{"k": "v"}).Warn("ignored", nil)
	NewTestLogger(t).Info("visible in -v output", map[string]interface{}{"err": errors.New("x")})
}

func TestNewFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	log, err := NewFromConfig(config.LoggingConfig{Level: "warn", Format: "console", Output: path})
	require.NoError(t, err)

	log.Info("below threshold", nil)
	log.Warn("bureau slow", map[string]interface{}{"latencyMs": 950})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bureau slow")
	assert.NotContains(t, string(data), "below threshold")
}
