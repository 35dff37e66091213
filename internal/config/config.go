// Package config loads the router's YAML configuration, mirroring the
// nested Config/BrokerConfig-style loader in
// tenzoki-agen/code/cellorg/internal/config/config.go: unmarshal, then
// fill defaults, then validate.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level router configuration file.
type Config struct {
	ListenAddress string       `yaml:"listen_address"`
	Codec         string       `yaml:"codec"`
	Debug         bool         `yaml:"debug"`
	Logging       LoggingConfig `yaml:"logging"`
	Realms        []RealmConfig `yaml:"realms"`
}

// LoggingConfig configures internal/logging.Init.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// RealmConfig describes one realm to create at startup.
type RealmConfig struct {
	Name                 string `yaml:"name"`
	DisclosurePublisher  string `yaml:"disclose_publisher"`
	DisclosureCaller     string `yaml:"disclose_caller"`
	CommandTimeoutMillis int    `yaml:"command_timeout_ms"`
	IdleTimeoutSeconds   int    `yaml:"idle_timeout_seconds"`
}

// CommandTimeout returns the realm's configured command timeout, or 0 if
// unset (meaning no timeout enforcement).
func (r RealmConfig) CommandTimeout() time.Duration {
	return time.Duration(r.CommandTimeoutMillis) * time.Millisecond
}

// IdleTimeout returns the realm's configured idle timeout, or 0 if unset.
func (r RealmConfig) IdleTimeout() time.Duration {
	return time.Duration(r.IdleTimeoutSeconds) * time.Second
}

// Load reads and parses filename, filling defaults the same way the
// reference loader does.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.Codec == "" {
		cfg.Codec = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if len(cfg.Realms) == 0 {
		cfg.Realms = []RealmConfig{{Name: "default"}}
	}

	for i, realm := range cfg.Realms {
		if realm.Name == "" {
			return nil, fmt.Errorf("realms[%d]: name is required", i)
		}
	}

	return &cfg, nil
}
