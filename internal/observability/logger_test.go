// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/webagents/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initBuffered resets the singleton and initializes it against an in-memory writer.
func initBuffered(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console logger colorizes levels", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "webagents",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Named("treesearch").Info("expanded node")

		out := buf.String()
		assert.Contains(t, out, ansiColors["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "webagents.treesearch.")
		assert.Contains(t, out, "expanded node")
	})

	t.Run("unknown color leaves level plain", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "console", Colors: config.ColorConfig{Warn: "chartreuse"}})
		GetLogger().Warn("plain")
		assert.Contains(t, buf.String(), "WARN")
		assert.NotContains(t, buf.String(), "\x1b[")
	})

	t.Run("json logger emits structured fields", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"})
		GetLogger().Warn("value parse failed", zap.Int("failed", 3))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "value parse failed", entry["msg"])
		assert.EqualValues(t, 3, entry["failed"])
	})

	t.Run("debug suppressed at info level", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json"})
		GetLogger().Debug("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("writes rotated file when configured", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "webagents.log")
		initBuffered(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1})
		GetLogger().Error("goes to the file")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "goes to the file")
	})

	t.Run("initializes only once", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("returns stored logger", func(t *testing.T) {
		initBuffered(t, config.LoggerConfig{Level: "info"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}
