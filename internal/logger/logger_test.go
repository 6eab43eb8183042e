package logger

import (
	"os"
	"path/filepath"
	"testing"

	"futures-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l := New(models.LogConfig{Level: "debug", Output: "file", File: path, MaxSize: 1})

	l.Sugar().Infow("grid level placed", "price", "100")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "grid level placed")
	assert.Contains(t, string(data), "INFO")
}

func TestNew_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l := New(models.LogConfig{Level: "warn", Output: "file", File: path})

	l.Info("hidden")
	l.Warn("shown")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestS_FallsBackWhenUninitialized(t *testing.T) {
	baseLogger = nil
	assert.NotNil(t, S())
}
