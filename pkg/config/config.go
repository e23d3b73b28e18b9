// Package config loads the client configuration from a YAML file in
// the user's configuration directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultServer is used when the configuration names no server.
const DefaultServer = "electrum.xmc.network:50002:s"

// FileName is the configuration file name inside the config directory.
const FileName = "config.yaml"

// Config is the client configuration. The zero value works; Load fills
// in defaults for anything the file leaves out.
type Config struct {
	// Server is the endpoint to connect to, in host:port:scheme form.
	Server string `yaml:"server"`

	// DataDir holds mutable state: pinned certificates, protocol logs.
	// Defaults to the directory the configuration was loaded from.
	DataDir string `yaml:"data_dir"`

	// Debug enables protocol event logging to EventLog.
	Debug bool `yaml:"debug"`

	// EventLog is the protocol event log file, relative paths resolved
	// against DataDir (default: "wire.elog").
	EventLog string `yaml:"event_log"`
}

// Dir returns the platform configuration directory for the client.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(base, "electrum-xmc"), nil
}

// Load reads the configuration file at path. A missing file yields the
// defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

// LoadDefault reads the configuration from the platform config
// directory.
func LoadDefault() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults(dir string) {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.DataDir == "" {
		c.DataDir = dir
	}
	if c.EventLog == "" {
		c.EventLog = "wire.elog"
	}
}

// CertsDir returns the directory holding pinned certificates.
func (c *Config) CertsDir() string {
	return filepath.Join(c.DataDir, "certs")
}

// EventLogPath returns the protocol event log location, resolving a
// relative EventLog against DataDir.
func (c *Config) EventLogPath() string {
	if filepath.IsAbs(c.EventLog) {
		return c.EventLog
	}
	return filepath.Join(c.DataDir, c.EventLog)
}
