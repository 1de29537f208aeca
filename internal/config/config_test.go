package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data/database.db", cfg.Database.Path)
	assert.Equal(t, "sqlite-db-mcp-server", cfg.Server.Name)
	assert.Equal(t, []string{"serve"}, cfg.Bridge.Args)
	assert.True(t, cfg.Audit.Enabled)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "/tmp/notes.db"

[log]
level = "debug"
file = ""

[audit]
enabled = false

[bridge]
command = "/usr/local/bin/sqlmcp"
args = ["serve", "--db", "/tmp/notes.db"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/notes.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.Log.File)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB, "untouched keys keep defaults")
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "/usr/local/bin/sqlmcp", cfg.Bridge.Command)
	assert.Equal(t, []string{"serve", "--db", "/tmp/notes.db"}, cfg.Bridge.Args)
}

func TestLoadRejectsSharedTelemetryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
path = "same.db"
[audit]
path = "same.db"
`), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "audit.path")
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database\npath="), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "parsing config")
}

func TestValidateAfterOverride(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Database.Path = "./" + cfg.Audit.Path
	assert.ErrorContains(t, cfg.Validate(), "audit.path must differ")

	cfg.Audit.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg.Database.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "database.path is required")
}
