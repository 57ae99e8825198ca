// Package config loads the server configuration file.
package config

import (
	"fmt"
	"os"

	"chainforge/internal/definition"
	"chainforge/internal/logging"

	"gopkg.in/yaml.v3"
)

// DefaultListenAddr is used when the config file sets no listen address.
const DefaultListenAddr = ":7600"

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the server configuration. Defaults apply to chain definitions
// registered without their own config values.
type Config struct {
	Listen   string                 `yaml:"listen"`
	Logging  LoggingConfig          `yaml:"logging"`
	Defaults definition.ChainConfig `yaml:"defaults"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Listen:  DefaultListenAddr,
		Logging: LoggingConfig{Level: "info"},
		Defaults: definition.ChainConfig{
			MaxChainLength:    definition.DefaultMaxChainLength,
			GlobalTimeoutSecs: definition.DefaultGlobalTimeoutSecs,
		},
	}
}

// Load reads and validates a YAML configuration file, filling unset fields
// with defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filename, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", filename, err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("config validation failed: listen address cannot be empty")
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Defaults.MaxChainLength <= 0 {
		return fmt.Errorf("config validation failed: defaults.maxChainLength must be positive")
	}
	if cfg.Defaults.GlobalTimeoutSecs <= 0 {
		return fmt.Errorf("config validation failed: defaults.globalTimeoutSecs must be positive")
	}
	return nil
}
