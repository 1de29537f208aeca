package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Audit    AuditConfig    `toml:"audit"`
	Bridge   BridgeConfig   `toml:"bridge"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ServerConfig is what the server advertises during the MCP handshake.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// AuditConfig controls the telemetry database holding audit_log and
// sql_traces. It is always a separate file from the served database.
type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// BridgeConfig describes how the client side launches the server.
// An empty Command means the running executable itself.
type BridgeConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/database.db",
		},
		Server: ServerConfig{
			Name:    "sqlite-db-mcp-server",
			Version: "0.1.0",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "data/mcp_server_activity.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "data/telemetry.db",
		},
		Bridge: BridgeConfig{
			Args: []string{"serve"},
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that Load cannot default. Call it again after
// applying command-line overrides.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if c.Audit.Enabled && filepath.Clean(c.Audit.Path) == filepath.Clean(c.Database.Path) {
		return fmt.Errorf("config: audit.path must differ from database.path")
	}
	return nil
}
