package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sqlmcp/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWritesToStreamAndFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "activity.log")
	var buf bytes.Buffer

	logger, closer := New(config.LogConfig{Level: "info", File: file, MaxSizeMB: 1, MaxBackups: 1}, &buf)
	logger.Debug("hidden")
	logger.Info("tool called", "tool", "list_db_tables")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "tool=list_db_tables")
	assert.NotContains(t, buf.String(), "hidden")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tool called")
}

func TestNewWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(config.LogConfig{Level: "debug"}, &buf)
	logger.Debug("visible")
	assert.NoError(t, closer.Close())
	assert.Contains(t, buf.String(), "visible")
}
