package logutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func resetLogger(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, InitLogger(&Config{Level: "info"}))
	})
}

func TestInitLoggerLevel(t *testing.T) {
	resetLogger(t)

	require.NoError(t, InitLogger(&Config{Level: "warn"}))
	assert.Equal(t, zapcore.WarnLevel, log.GetLevel())

	require.NoError(t, InitLogger(&Config{}))
	assert.Equal(t, zapcore.InfoLevel, log.GetLevel())
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	assert.Error(t, InitLogger(&Config{Level: "chatty"}))
}

func TestInitLoggerFile(t *testing.T) {
	resetLogger(t)
	path := filepath.Join(t.TempDir(), "coordinator.log")

	require.NoError(t, InitLogger(&Config{Level: "debug", File: path}))
	log.Info("catalog scanner test line", zap.String("scanner", "root"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "catalog scanner test line")
	assert.Contains(t, string(data), "scanner=root")
}
