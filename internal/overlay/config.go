package overlay

import (
	"time"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
)

// Defaults applied to zero config values
const (
	DefaultNetworkPort     = 2015
	DefaultMaxClosestNodes = 2
	DefaultBucketSize      = 2
	DefaultLookupTimeout   = 5 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultMessageTimeout  = 5 * time.Second
	DefaultPingInterval    = 30 * time.Second
)

// Config defines node configuration
type Config struct {
	NodeID string `yaml:"node_id"` // Optional, generated if empty

	// Network
	Host        string `yaml:"host"`
	NetworkPort int    `yaml:"network_port"` // 0 binds an ephemeral port

	// Routing
	MaxClosestNodes int `yaml:"max_closest_nodes"` // lookup fanout
	BucketSize      int `yaml:"bucket_size"`

	// Timing
	LookupTimeout  time.Duration `yaml:"lookup_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MessageTimeout time.Duration `yaml:"message_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// DefaultConfig returns the configuration a node runs with out of the box
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		NetworkPort:     DefaultNetworkPort,
		MaxClosestNodes: DefaultMaxClosestNodes,
		BucketSize:      DefaultBucketSize,
		LookupTimeout:   DefaultLookupTimeout,
		ConnectTimeout:  DefaultConnectTimeout,
		MessageTimeout:  DefaultMessageTimeout,
		PingInterval:    DefaultPingInterval,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxClosestNodes <= 0 {
		c.MaxClosestNodes = DefaultMaxClosestNodes
	}
	if c.BucketSize <= 0 {
		c.BucketSize = DefaultBucketSize
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = DefaultLookupTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = DefaultMessageTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
}

// Validate checks values that have no sensible default
func (c Config) Validate() error {
	if c.NetworkPort < 0 || c.NetworkPort > 65535 {
		return mateerrors.Newf(mateerrors.KindConfiguration, "node config",
			"network_port %d out of range", c.NetworkPort)
	}
	if c.NodeID != "" {
		if _, err := ParseNodeID(c.NodeID); err != nil {
			return mateerrors.Wrap(mateerrors.KindConfiguration, "node config", err)
		}
	}
	if c.MaxClosestNodes < 0 || c.BucketSize < 0 {
		return mateerrors.New(mateerrors.KindConfiguration, "node config",
			"max_closest_nodes and bucket_size must not be negative")
	}
	return nil
}
