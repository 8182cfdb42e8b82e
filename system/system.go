// Package system holds the process-wide endpoint registry: one entry per
// shard and per driver in the deployment, each either a local in-process
// queue or a reference to the network forwarder for the owning peer. The
// tables are built once at bootstrap and never change.
package system

import (
	"fmt"

	"github.com/pithecene-io/coalesce/types"
	"github.com/pithecene-io/coalesce/wire"
)

// ShardAccess delivers message batches to one shard endpoint.
type ShardAccess interface {
	SendShardMessages(batch []types.ShardMessage)
}

// DriverAccess delivers completion batches to one driver endpoint.
type DriverAccess interface {
	SendDriverMessages(batch []types.DriverMessage)
}

// RemoteSink accepts encoded frames bound for one remote peer. Implemented
// by the network forwarder's outbound queue.
type RemoteSink interface {
	EnqueueFrame(frame []byte)
}

// LocalShard is an in-process shard endpoint: the inbound queue its worker
// drains.
type LocalShard struct {
	Queue *Queue[[]types.ShardMessage]
}

// NewLocalShard creates a shard endpoint with a fresh queue.
func NewLocalShard() *LocalShard {
	return &LocalShard{Queue: NewQueue[[]types.ShardMessage]()}
}

func (s *LocalShard) SendShardMessages(batch []types.ShardMessage) {
	s.Queue.Push(batch)
}

// LocalDriver is an in-process driver endpoint: the completion queue the
// client drains.
type LocalDriver struct {
	Queue *Queue[[]types.DriverMessage]
}

// NewLocalDriver creates a driver endpoint with a fresh queue.
func NewLocalDriver() *LocalDriver {
	return &LocalDriver{Queue: NewQueue[[]types.DriverMessage]()}
}

func (d *LocalDriver) SendDriverMessages(batch []types.DriverMessage) {
	d.Queue.Push(batch)
}

// RemoteShard is a shard endpoint on another peer: batches are encoded and
// handed to that peer's forwarder.
type RemoteShard struct {
	Sink    RemoteSink
	ShardID uint16
}

func (r RemoteShard) SendShardMessages(batch []types.ShardMessage) {
	frame, err := wire.EncodeShardBatch(r.ShardID, batch)
	if err != nil {
		panic(fmt.Sprintf("system: encode shard batch for %d: %v", r.ShardID, err))
	}
	r.Sink.EnqueueFrame(frame)
}

// RemoteDriver is a driver endpoint on another peer.
type RemoteDriver struct {
	Sink     RemoteSink
	DriverID uint16
}

func (r RemoteDriver) SendDriverMessages(batch []types.DriverMessage) {
	frame, err := wire.EncodeDriverBatch(r.DriverID, batch)
	if err != nil {
		panic(fmt.Sprintf("system: encode driver batch for %d: %v", r.DriverID, err))
	}
	r.Sink.EnqueueFrame(frame)
}

// System is the endpoint registry, indexed by global shard and driver id.
// Immutable after construction; freely shared across workers and
// forwarders.
type System struct {
	shards  []ShardAccess
	drivers []DriverAccess
}

// New builds a registry from fully-populated endpoint tables.
func New(shards []ShardAccess, drivers []DriverAccess) *System {
	return &System{shards: shards, drivers: drivers}
}

// Shard returns the endpoint for a global shard id.
func (s *System) Shard(id uint16) ShardAccess {
	return s.shards[id]
}

// Driver returns the endpoint for a global driver id.
func (s *System) Driver(id uint16) DriverAccess {
	return s.drivers[id]
}

// NumShards returns the deployment-wide shard count.
func (s *System) NumShards() int {
	return len(s.shards)
}

// NumDrivers returns the deployment-wide driver count.
func (s *System) NumDrivers() int {
	return len(s.drivers)
}
