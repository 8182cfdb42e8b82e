// Package cmd implements the coalesce CLI commands.
package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/coalesce/cli/config"
	"github.com/pithecene-io/coalesce/storage"
)

// sharedFlags are accepted by both master and worker.
func sharedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to YAML config file (defaults for flags below)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, or error",
		},
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Per-shard storage backend: ram or redis",
		},
		&cli.StringFlag{
			Name:  "redis-url",
			Usage: "Redis connection URL (redis backend only)",
		},
		&cli.StringFlag{
			Name:  "redis-prefix",
			Usage: "Redis key namespace (redis backend only)",
		},
	}
}

// resolveConfig loads the config file (if any) and overlays CLI flags.
func resolveConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("storage-backend") {
		cfg.Storage.Backend = c.String("storage-backend")
	}
	if c.IsSet("redis-url") {
		cfg.Storage.RedisURL = c.String("redis-url")
	}
	if c.IsSet("redis-prefix") {
		cfg.Storage.RedisPrefix = c.String("redis-prefix")
	}
	if c.IsSet("shards-per-peer") {
		n := c.Uint("shards-per-peer")
		if n == 0 || n > 65535 {
			return nil, fmt.Errorf("shards-per-peer must be in 1..65535, got %d", n)
		}
		cfg.ShardsPerPeer = uint16(n)
	}
	if c.IsSet("batch-len") {
		cfg.BatchLen = c.Int("batch-len")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storeFactory builds the per-shard storage constructor for the selected
// backend.
func storeFactory(cfg *config.Config) func(uint16) storage.Storage {
	if cfg.Storage.Backend != "redis" {
		return nil // in-memory default
	}
	rc := storage.RedisConfig{URL: cfg.Storage.RedisURL, Prefix: cfg.Storage.RedisPrefix}
	return func(shard uint16) storage.Storage {
		s, err := storage.NewRedis(rc, shard)
		if err != nil {
			panic(fmt.Sprintf("open redis storage for shard %d: %v", shard, err))
		}
		return s
	}
}
