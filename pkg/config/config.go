// Package config loads and persists the kite daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/kitemesh/kite/pkg/node"
	"github.com/kitemesh/kite/pkg/queue"
	"github.com/kitemesh/kite/pkg/rpc"
)

const (
	configFilePerm = 0o600

	DefaultBridgeAddr       = "127.0.0.1:8765"
	DefaultSnapshotInterval = 10 * time.Second
)

// Config is the on-disk configuration. Zero values fall back to
// defaults at load time. kited is the only binary that loads it, and it
// reads CoordinatorAddr, Metrics, GraphSnapshotPath, SnapshotInterval
// and Debug; kite-bridge and node.New do not read a Config, so PortMin,
// PortMax, QueueCapacity and BridgeAddr are validated and persisted but
// not applied.
type Config struct {
	// CoordinatorAddr is where the coordinator serves RPC.
	CoordinatorAddr string `yaml:"coordinatorAddr,omitempty"`

	// PortMin and PortMax bound the node listener port search.
	PortMin int `yaml:"portMin,omitempty"`
	PortMax int `yaml:"portMax,omitempty"`

	// QueueCapacity is the default per-topic queue bound.
	QueueCapacity int `yaml:"queueCapacity,omitempty"`

	// BridgeAddr is a websocket listen address for kite-bridge; the
	// kite-bridge binary takes its address from its --addr flag instead.
	BridgeAddr string `yaml:"bridgeAddr,omitempty"`

	// Metrics enables the coordinator's /metrics endpoint.
	Metrics bool `yaml:"metrics,omitempty"`

	// GraphSnapshotPath, when set, makes the coordinator periodically
	// write its graph JSON there.
	GraphSnapshotPath string        `yaml:"graphSnapshotPath,omitempty"`
	SnapshotInterval  time.Duration `yaml:"snapshotInterval,omitempty"`

	// Debug lowers the log level to debug.
	Debug bool `yaml:"debug,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.CoordinatorAddr == "" {
		c.CoordinatorAddr = rpc.DefaultAddr
	}
	if c.PortMin == 0 {
		c.PortMin = node.DefaultPortMin
	}
	if c.PortMax == 0 {
		c.PortMax = node.DefaultPortMax
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = queue.DefaultCapacity
	}
	if c.BridgeAddr == "" {
		c.BridgeAddr = DefaultBridgeAddr
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
}

func (c *Config) validate() error {
	if c.PortMax < c.PortMin {
		return fmt.Errorf("invalid port range %d-%d", c.PortMin, c.PortMax)
	}
	if c.QueueCapacity < 0 {
		return errors.New("queueCapacity must be >= 0")
	}
	if c.SnapshotInterval < 0 {
		return errors.New("snapshotInterval must be >= 0")
	}
	return nil
}

// Load reads the config file, tolerating a missing file by returning
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config atomically.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := renameio.WriteFile(path, encoded, configFilePerm); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
