// Package driver is the client-facing façade: it turns API calls into
// protocol messages and exposes the completion stream they resolve through.
package driver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pithecene-io/coalesce/batch"
	"github.com/pithecene-io/coalesce/system"
	"github.com/pithecene-io/coalesce/types"
)

// Driver issues requests into the deployment and receives completions.
//
// All request methods are non-blocking: results arrive on the completion
// stream, correlated by the caller-supplied ReqID. The driver keeps no
// record of in-flight requests.
//
// A Driver is owned by one client goroutine; it is not safe for concurrent
// use.
type Driver struct {
	id     uint16
	sys    *system.System
	out    *batch.MessageBatching
	recv   *system.Queue[[]types.DriverMessage]
	logger *zap.Logger
}

// New assembles a driver over its completion queue. Logger may be nil.
func New(id uint16, sys *system.System, recv *system.Queue[[]types.DriverMessage], logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		id:     id,
		sys:    sys,
		out:    batch.New(sys),
		recv:   recv,
		logger: logger.With(zap.Uint16("driver_id", id)),
	}
}

// ID returns this driver's global id.
func (d *Driver) ID() uint16 {
	return d.id
}

// SetBatchLen tunes the outbound hand-off threshold; see
// batch.MessageBatching.SetBatchLen.
func (d *Driver) SetBatchLen(n int) {
	d.out.SetBatchLen(n)
}

// AddNode requests allocation of a node on shard. Completes with
// AddNodeDone(req, key).
func (d *Driver) AddNode(req types.ReqID, shard uint16) {
	d.out.SendToShard(types.AddNode(shard, req))
}

// Union requests merging node's class into to's. Completes with
// UnionDone(req).
func (d *Driver) Union(req types.ReqID, node, to types.Key) {
	d.out.SendToShard(types.Union(node, to, node, req))
}

// Find requests node's root. Completes with FindDone(req, root).
func (d *Driver) Find(req types.ReqID, node types.Key) {
	d.out.SendToShard(types.Find(node, node, req))
}

// Flush pushes buffered requests to their shards. A buffer below the batch
// length is not sent until someone flushes.
func (d *Driver) Flush() {
	d.out.Flush()
}

// Recv blocks for the next completion batch. The second return is false
// when the stream is closed.
func (d *Driver) Recv() ([]types.DriverMessage, bool) {
	return d.recv.Recv()
}

// TryRecv returns a completion batch without blocking.
func (d *Driver) TryRecv() ([]types.DriverMessage, bool) {
	return d.recv.TryRecv()
}

// ShutdownAllAndWait sends GracefulShutdown to every shard in the
// deployment and blocks until all have acknowledged. The caller must have
// observed completions for all prior requests first: any non-shutdown
// message still arriving is a protocol violation and panics.
func (d *Driver) ShutdownAllAndWait() {
	n := d.sys.NumShards()
	for i := 0; i < n; i++ {
		d.out.SendToShard(types.Shutdown(uint16(i), types.NewReqID(d.id, uint64(i))))
	}
	d.out.Flush()
	d.logger.Info("shutdown requested", zap.Int("shards", n))

	remaining := n
	for remaining > 0 {
		b, ok := d.recv.Recv()
		if !ok {
			panic(fmt.Sprintf("driver %d: completion stream closed with %d shutdowns outstanding", d.id, remaining))
		}
		for _, msg := range b {
			if msg.Op != types.OpShutdownDone {
				panic(fmt.Sprintf("driver %d: completion op %d during shutdown", d.id, msg.Op))
			}
			remaining--
		}
	}
	d.logger.Info("shutdown complete")
}

// Close flushes any buffered requests.
func (d *Driver) Close() error {
	return d.out.Close()
}
