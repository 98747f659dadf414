package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shizukutanaka/mate/internal/logging"
	"github.com/shizukutanaka/mate/internal/monitoring"
	"github.com/shizukutanaka/mate/internal/protocol"
)

// Validator checks that a loaded configuration is usable
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs a full validation of the provided Config struct.
func (v *Validator) Validate(cfg *Config) error {
	if err := cfg.Node.Validate(); err != nil {
		return fmt.Errorf("node config: %w", err)
	}
	if err := v.validateLogging(cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := v.validateMetrics(cfg.Metrics); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := v.validateBootstrap(cfg); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

func (v *Validator) validateLogging(cfg logging.Config) error {
	return cfg.Validate()
}

func (v *Validator) validateMetrics(cfg monitoring.Config) error {
	if !cfg.Enabled {
		return nil
	}
	if err := v.validateListenAddress(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr: %w", err)
	}
	if !strings.HasPrefix(cfg.MetricsPath, "/") {
		return fmt.Errorf("metrics_path must start with /: %q", cfg.MetricsPath)
	}
	return nil
}

func (v *Validator) validateBootstrap(cfg *Config) error {
	for _, addr := range cfg.Bootstrap {
		parsed, err := protocol.ParseAddress(addr)
		if err != nil {
			return err
		}
		if parsed.Port == 0 {
			return fmt.Errorf("bootstrap address %q needs a port", addr)
		}
	}
	if len(cfg.Bootstrap) > 0 && cfg.BootstrapTimeout <= 0 {
		return errors.New("bootstrap_timeout must be positive")
	}
	return nil
}

func (v *Validator) validateListenAddress(addr string) error {
	if addr == "" {
		return errors.New("address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address format: %s", addr)
	}
	return nil
}
