package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLoggerWritesJSONFileAndConsole(t *testing.T) {
	var file, console bytes.Buffer
	log := newWithWriters(zapcore.AddSync(&file), zapcore.AddSync(&console), false)

	log.Debug("hidden")
	log.Info("session started", zap.Int64("user_id", 7))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry))
	assert.Equal(t, "session started", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 7, entry["user_id"])
	assert.Contains(t, console.String(), "session started")
	assert.NotContains(t, console.String(), "hidden")
}

func TestDebugLevel(t *testing.T) {
	var file, console bytes.Buffer
	log := newWithWriters(zapcore.AddSync(&file), zapcore.AddSync(&console), true)
	log.Debug("visible")
	assert.Contains(t, console.String(), "visible")
}
