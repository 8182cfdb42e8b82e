package driver

import (
	"go.uber.org/zap"

	"github.com/pithecene-io/coalesce/metrics"
	"github.com/pithecene-io/coalesce/shard"
	"github.com/pithecene-io/coalesce/storage"
	"github.com/pithecene-io/coalesce/system"
)

// LocalDeployment is a single-process deployment: every shard worker and
// every driver connected over in-process queues. Used by tests and
// single-machine loads.
type LocalDeployment struct {
	Drivers []*Driver
	System  *system.System

	handles []*shard.Handle
}

// LocalConfig configures a single-process deployment.
type LocalConfig struct {
	NumDrivers int
	NumShards  uint16
	// NewStore builds the storage for one shard. Nil means in-memory.
	NewStore func(shard uint16) storage.Storage
	// Logger may be nil.
	Logger *zap.Logger
	// Collector may be nil.
	Collector *metrics.Collector
}

// NewLocal spawns NumShards workers and creates NumDrivers drivers over a
// shared registry.
func NewLocal(cfg LocalConfig) *LocalDeployment {
	newStore := cfg.NewStore
	if newStore == nil {
		newStore = func(uint16) storage.Storage { return storage.NewRAM() }
	}

	localShards := make([]*system.LocalShard, cfg.NumShards)
	shardAccess := make([]system.ShardAccess, cfg.NumShards)
	for i := range localShards {
		localShards[i] = system.NewLocalShard()
		shardAccess[i] = localShards[i]
	}

	localDrivers := make([]*system.LocalDriver, cfg.NumDrivers)
	driverAccess := make([]system.DriverAccess, cfg.NumDrivers)
	for i := range localDrivers {
		localDrivers[i] = system.NewLocalDriver()
		driverAccess[i] = localDrivers[i]
	}

	sys := system.New(shardAccess, driverAccess)

	d := &LocalDeployment{System: sys}
	for i := uint16(0); i < cfg.NumShards; i++ {
		d.handles = append(d.handles, shard.Spawn(shard.Config{
			ShardID:   i,
			Store:     newStore(i),
			Inbound:   localShards[i].Queue,
			System:    sys,
			Logger:    cfg.Logger,
			Collector: cfg.Collector,
		}))
	}
	for i := range localDrivers {
		d.Drivers = append(d.Drivers, New(uint16(i), sys, localDrivers[i].Queue, cfg.Logger))
	}
	return d
}

// Wait joins every shard worker. Call after ShutdownAllAndWait.
func (d *LocalDeployment) Wait() {
	for _, h := range d.handles {
		h.Wait()
	}
}
