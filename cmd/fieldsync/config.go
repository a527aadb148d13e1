// ABOUTME: config.go provides configuration file management for the fieldsync CLI.
// ABOUTME: Supports loading, saving, and environment variable overrides.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the fieldsync CLI configuration.
type Config struct {
	Server   string `json:"server"`
	DeviceID string `json:"device_id"`
	DBPath   string `json:"db_path"`
	Tokens   string `json:"tokens_path"`
}

// ConfigPath returns the path to the config file. Overridable in tests.
var ConfigPath = func() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".fieldsync", "config.json")
	}
	return filepath.Join(home, ".fieldsync", "config.json")
}

// ConfigDir returns the directory containing the config file.
func ConfigDir() string {
	return filepath.Dir(ConfigPath())
}

// LoadConfig loads config from file and applies environment variable
// overrides. Returns defaults if the file doesn't exist.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(ConfigPath())
	if err == nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("config file corrupted: %w\nRun 'fieldsync init' to create a new config", jsonErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(ConfigDir(), "local.db")
	}
	if cfg.Tokens == "" {
		cfg.Tokens = filepath.Join(ConfigDir(), "tokens.json")
	}
	return cfg, nil
}

// SaveConfig writes the config file, creating its directory if needed.
func SaveConfig(cfg *Config) error {
	if err := os.MkdirAll(ConfigDir(), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0o600)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIELDSYNC_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("FIELDSYNC_DEVICE_ID"); v != "" {
		cfg.DeviceID = v
	}
	if v := os.Getenv("FIELDSYNC_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FIELDSYNC_TOKENS"); v != "" {
		cfg.Tokens = v
	}
}
