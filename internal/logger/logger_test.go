package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("bogus"))
}

func TestInitializeWritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "beacon.log")

	require.NoError(t, Initialize("info", file))
	Log.Info("hello", WithUserID("u1"), WithEvent("add-user"))
	// stdout sync fails on pipes; the file core has already written
	_ = Close()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user_id":"u1"`)
	assert.Contains(t, string(data), `"event":"add-user"`)
}

func TestInitializeConsoleOnly(t *testing.T) {
	require.NoError(t, Initialize("error", ""))
	assert.NotNil(t, Log)
	assert.NotNil(t, SugaredLog)
}
