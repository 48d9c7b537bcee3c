// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wp-filler/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// syncBuffer is a goroutine safe WriteSyncer over a bytes.Buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

func TestNewLogger(t *testing.T) {
	t.Run("console format colorizes the level", func(t *testing.T) {
		out := &syncBuffer{}
		logger := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "wp-filler",
			Colors:      config.ColorConfig{Info: "green"},
		}, out)

		logger.Named("filler").Info("panel activated", zap.String("panel", "panel_hero_area"))

		output := out.String()
		assert.Contains(t, output, colorGreen+"INFO"+colorReset)
		assert.Contains(t, output, "wp-filler.filler.")
		assert.Contains(t, output, "panel activated")
		assert.Contains(t, output, "panel_hero_area")
	})

	t.Run("json format is machine readable", func(t *testing.T) {
		out := &syncBuffer{}
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "svc"}, out)
		logger.Warn("field failed", zap.String("payload_key", "cta_text"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out.String()), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "svc", entry["logger"])
		assert.Equal(t, "field failed", entry["msg"])
		assert.Equal(t, "cta_text", entry["payload_key"])
	})

	t.Run("level filters debug entries", func(t *testing.T) {
		out := &syncBuffer{}
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json"}, out)
		logger.Debug("hidden")
		assert.Empty(t, out.String())
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		out := &syncBuffer{}
		logger := NewLogger(config.LoggerConfig{Level: "loud", Format: "json"}, out)
		logger.Debug("hidden")
		logger.Info("shown")
		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("file core receives json", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "wp-filler.log")
		logger := NewLogger(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		}, &syncBuffer{})
		logger.Error("run failed")
		_ = logger.Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		line := strings.TrimSpace(string(content))
		assert.True(t, strings.HasPrefix(line, "{"), "file output should be JSON: %s", line)
		assert.Contains(t, line, "run failed")
	})
}

func TestInitialize(t *testing.T) {
	t.Run("only the first call wins", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		out := &syncBuffer{}
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, out)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, out)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})

	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		require.NotNil(t, GetLogger())
	})
}
