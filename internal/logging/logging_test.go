package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entityindexer/internal/config"
)

func TestJSONConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newWithConsole(config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("block committed")
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "block committed", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "indexer.log")
	var buf bytes.Buffer
	logger, err := newWithConsole(config.LogConfig{Level: "debug", Format: "console", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	logger.Debug("to file")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, buf.String(), "to file")
}

func TestInvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}
