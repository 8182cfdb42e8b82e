// Package batch accumulates outbound messages per destination and hands
// full buffers to the destination endpoint, trading per-message channel and
// network overhead for latency bounded by explicit flushes.
package batch

import (
	"github.com/pithecene-io/coalesce/system"
	"github.com/pithecene-io/coalesce/types"
)

// DefaultBatchLen is the buffer size that triggers an automatic hand-off.
const DefaultBatchLen = 50_000

// MessageBatching owns one outbound buffer per shard and per driver in the
// deployment. Not safe for concurrent use; each worker and each driver owns
// its own instance.
//
// Callers that stop using a batching instance must call Close (or Flush) so
// buffered messages are not lost.
type MessageBatching struct {
	sys      *system.System
	batchLen int

	shardBatches  [][]types.ShardMessage
	driverBatches [][]types.DriverMessage
}

// New creates a batching instance over the deployment's endpoint registry.
func New(sys *system.System) *MessageBatching {
	return &MessageBatching{
		sys:           sys,
		batchLen:      DefaultBatchLen,
		shardBatches:  make([][]types.ShardMessage, sys.NumShards()),
		driverBatches: make([][]types.DriverMessage, sys.NumDrivers()),
	}
}

// SetBatchLen tunes the hand-off threshold. Zero or negative disables
// automatic hand-off entirely (bulk-load mode); every message then waits
// for an explicit Flush. The threshold is a throughput/latency knob with no
// correctness effect.
func (b *MessageBatching) SetBatchLen(n int) {
	b.batchLen = n
}

// SendToShard buffers a shard message, handing the buffer off when it
// crosses the batch length.
func (b *MessageBatching) SendToShard(msg types.ShardMessage) {
	target := msg.TargetShard()
	buf := append(b.shardBatches[target], msg)
	if b.batchLen > 0 && len(buf) >= b.batchLen {
		b.shardBatches[target] = nil
		b.sys.Shard(target).SendShardMessages(buf)
		return
	}
	b.shardBatches[target] = buf
}

// SendToDriver buffers a completion, handing the buffer off when it crosses
// the batch length.
func (b *MessageBatching) SendToDriver(msg types.DriverMessage) {
	target := msg.TargetDriver()
	buf := append(b.driverBatches[target], msg)
	if b.batchLen > 0 && len(buf) >= b.batchLen {
		b.driverBatches[target] = nil
		b.sys.Driver(target).SendDriverMessages(buf)
		return
	}
	b.driverBatches[target] = buf
}

// Flush hands every non-empty buffer to its endpoint.
func (b *MessageBatching) Flush() {
	for target, buf := range b.shardBatches {
		if len(buf) > 0 {
			b.shardBatches[target] = nil
			b.sys.Shard(uint16(target)).SendShardMessages(buf)
		}
	}
	for target, buf := range b.driverBatches {
		if len(buf) > 0 {
			b.driverBatches[target] = nil
			b.sys.Driver(uint16(target)).SendDriverMessages(buf)
		}
	}
}

// Close flushes remaining messages. The instance stays usable, but Close is
// the call sites' signal that ownership ends here.
func (b *MessageBatching) Close() error {
	b.Flush()
	return nil
}
