package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestLogger_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(cfgpkg.LoggingConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))

	log.Info("dropped")
	log.Warn("link disconnected", zap.String("addr", "127.0.0.1:7000"))
	require.NoError(t, log.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "link disconnected", entry["msg"])
	assert.Equal(t, "127.0.0.1:7000", entry["addr"])
	assert.Contains(t, entry, "ts")
	assert.Contains(t, entry, "caller")
}

func TestLogger_RollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flemd.log")
	var buf bytes.Buffer
	log := newLogger(cfgpkg.LoggingConfig{
		Level:  "info",
		Format: "console",
		File:   cfgpkg.LumberjackConfig{Filename: path, MaxSizeMB: 1},
	}, zapcore.AddSync(&buf))

	log.Info("link connected")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "link connected")
	assert.Contains(t, buf.String(), "link connected")
}
