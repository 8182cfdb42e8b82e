package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents a coalesce.yaml configuration file.
// All values are optional and act as defaults for command-line flags.
// CLI flags always override config values.
type Config struct {
	// Peers lists worker addresses in peer-id order (peer 1 first).
	// Master only.
	Peers []string `yaml:"peers"`
	// ShardsPerPeer is the shard count hosted by every peer.
	ShardsPerPeer uint16 `yaml:"shards_per_peer"`
	// BatchLen is the driver's outbound hand-off threshold during the
	// master's allocation load; zero means hand off only at flush.
	BatchLen int `yaml:"batch_len"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string        `yaml:"log_level"`
	Storage  StorageConfig `yaml:"storage"`
}

// StorageConfig selects the per-shard storage backend.
type StorageConfig struct {
	// Backend is "ram" (default) or "redis".
	Backend string `yaml:"backend"`
	// RedisURL is required when Backend is redis.
	RedisURL string `yaml:"redis_url"`
	// RedisPrefix namespaces redis keys; optional.
	RedisPrefix string `yaml:"redis_prefix"`
}

// Load reads path, expands ${VAR} references, and decodes it strictly:
// an unknown key fails the load, so a misspelled field cannot silently
// fall back to its default.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(raw))))
	dec.KnownFields(true)

	cfg := &Config{}
	switch err := dec.Decode(cfg); {
	case err == nil, errors.Is(err, io.EOF):
		// An empty file is a valid all-defaults config.
	default:
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// PeerAddrs parses the configured peer list.
func (c *Config) PeerAddrs() ([]netip.AddrPort, error) {
	addrs := make([]netip.AddrPort, 0, len(c.Peers))
	for _, raw := range c.Peers {
		addr, err := netip.ParseAddrPort(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid peer address %q: %w", raw, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// Validate rejects combinations no deployment can run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "", "ram":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage backend redis requires redis_url")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
