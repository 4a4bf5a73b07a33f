package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/neoxmeet/meet-backend/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	logger := New(config.LogConfig{Level: "debug", Format: "json"}, false)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = New(config.LogConfig{Level: "nope"}, false)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger = New(config.LogConfig{Level: "warn"}, true)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger := New(config.LogConfig{Level: "info", File: path}, true)

	logger.WithField("room", "abc").Info("session opened")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"room":"abc"`)
	assert.Contains(t, string(data), "session opened")
}
