package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/logging"
	"github.com/shizukutanaka/mate/internal/monitoring"
	"github.com/shizukutanaka/mate/internal/overlay"
)

// EnvPrefix prefixes every environment override, e.g. MATE_NODE_NETWORK_PORT
const EnvPrefix = "MATE"

// Config is the complete application configuration
type Config struct {
	Node    overlay.Config    `yaml:"node"`
	Logging logging.Config    `yaml:"logging"`
	Metrics monitoring.Config `yaml:"metrics"`

	// Bootstrap lists host:port addresses connected to at startup
	Bootstrap        []string      `yaml:"bootstrap"`
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() *Config {
	return &Config{
		Node:             overlay.DefaultConfig(),
		Logging:          logging.DefaultConfig(),
		Metrics:          monitoring.DefaultConfig(),
		BootstrapTimeout: 30 * time.Second,
	}
}

// Load builds the configuration from defaults, the YAML file at path and
// environment overrides, then validates it. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, mateerrors.Wrap(mateerrors.KindConfiguration, "load config",
					fmt.Errorf("failed to read config file: %w", err))
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, mateerrors.Wrap(mateerrors.KindConfiguration, "load config",
				fmt.Errorf("failed to parse YAML config: %w", err))
		}
	}

	if err := NewEnvLoader(EnvPrefix).Load(cfg); err != nil {
		return nil, mateerrors.Wrap(mateerrors.KindConfiguration, "load config",
			fmt.Errorf("failed to load config from environment: %w", err))
	}

	if err := NewValidator().Validate(cfg); err != nil {
		return nil, mateerrors.Wrap(mateerrors.KindConfiguration, "load config",
			fmt.Errorf("configuration validation failed: %w", err))
	}

	return cfg, nil
}
