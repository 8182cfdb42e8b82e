// Package shard runs the per-shard worker: a single-threaded state machine
// that owns one Storage and processes the shard-directed message set.
//
// A worker never blocks on another shard. Every cross-shard step is a
// one-hop message through its outbound batching; messages whose target is
// this shard short-circuit onto an in-memory stack instead of taking a
// queue round-trip.
package shard

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pithecene-io/coalesce/batch"
	"github.com/pithecene-io/coalesce/metrics"
	"github.com/pithecene-io/coalesce/storage"
	"github.com/pithecene-io/coalesce/system"
	"github.com/pithecene-io/coalesce/types"
)

// FlushThreshold is the number of processed messages after which outbound
// buffers are flushed pre-emptively, capping buffered memory and tail
// latency. Tuning only; no correctness effect.
const FlushThreshold = 100_000

// Worker is one shard's state machine. Run drains the inbound queue until
// a GracefulShutdown arrives or the queue closes.
type Worker struct {
	shardID   uint16
	store     storage.Storage
	inbound   *system.Queue[[]types.ShardMessage]
	out       *batch.MessageBatching
	pending   []types.ShardMessage
	logger    *zap.Logger
	collector *metrics.Collector

	sinceFlush   int
	shutdownReq  types.ReqID
	shutdownSeen bool
}

// Config assembles a Worker.
type Config struct {
	ShardID uint16
	Store   storage.Storage
	Inbound *system.Queue[[]types.ShardMessage]
	System  *system.System
	// Logger may be nil.
	Logger *zap.Logger
	// Collector may be nil.
	Collector *metrics.Collector
}

// NewWorker assembles a worker; it does not start it.
func NewWorker(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		shardID:   cfg.ShardID,
		store:     cfg.Store,
		inbound:   cfg.Inbound,
		out:       batch.New(cfg.System),
		logger:    logger.With(zap.Uint16("shard_id", cfg.ShardID)),
		collector: cfg.Collector,
	}
}

// Handle joins a spawned worker.
type Handle struct {
	done chan struct{}
}

// Wait blocks until the worker has exited.
func (h *Handle) Wait() {
	<-h.done
}

// Spawn starts the worker on its own goroutine.
func Spawn(cfg Config) *Handle {
	w := NewWorker(cfg)
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		w.Run()
	}()
	return h
}

// Run is the worker loop: block for a batch, opportunistically coalesce
// whatever else is already queued, then flush once for guaranteed forward
// progress.
func (w *Worker) Run() {
	defer func() { _ = w.out.Close() }()

	w.logger.Debug("shard worker started")
	for {
		b, ok := w.inbound.Recv()
		if !ok {
			// Inbound closed under us: shutdown-with-loss.
			w.logger.Warn("inbound queue closed without graceful shutdown")
			return
		}
		w.drain(b)
		for {
			b, ok := w.inbound.TryRecv()
			if !ok {
				break
			}
			w.drain(b)
		}
		w.out.Flush()
		w.collector.IncFlush()
		w.sinceFlush = 0

		if w.shutdownSeen {
			w.out.SendToDriver(types.ShutdownDone(w.shutdownReq))
			w.out.Flush()
			w.collector.IncShutdownDone()
			w.logger.Debug("shard worker exiting",
				zap.Uint64("nodes", w.store.Len()))
			return
		}
	}
}

// drain processes one inbound batch, exhaustively popping the local
// pending stack after each message. LIFO order within a walk is safe:
// SetParent is idempotent and SetChild/SetSibling form a strict chain.
func (w *Worker) drain(b []types.ShardMessage) {
	w.collector.AddBatchReceived(len(b))
	for _, msg := range b {
		w.process(msg)
		w.maybeFlush()
		local := 0
		for len(w.pending) > 0 {
			last := len(w.pending) - 1
			m := w.pending[last]
			w.pending = w.pending[:last]
			w.process(m)
			w.maybeFlush()
			local++
		}
		if local > 0 {
			w.collector.AddLocalStackHits(local)
		}
	}
}

// maybeFlush flushes outbound buffers once the back-pressure threshold is
// crossed.
func (w *Worker) maybeFlush() {
	w.sinceFlush++
	if w.sinceFlush > FlushThreshold {
		w.out.Flush()
		w.collector.IncFlush()
		w.sinceFlush = 0
	}
}

// send routes a shard message: onto the pending stack when it targets this
// shard, into outbound batching otherwise.
func (w *Worker) send(msg types.ShardMessage) {
	if msg.TargetShard() == w.shardID {
		w.pending = append(w.pending, msg)
	} else {
		w.out.SendToShard(msg)
	}
}

func (w *Worker) process(msg types.ShardMessage) {
	switch msg.Op {
	case types.OpAddNode:
		if msg.Shard != w.shardID {
			panic(fmt.Sprintf("shard %d: AddNode for shard %d", w.shardID, msg.Shard))
		}
		key := w.store.AddNode(msg.Shard)
		w.out.SendToDriver(types.AddNodeDone(msg.Req, key))
		w.collector.IncNodeAdded()

	case types.OpUnion:
		w.union(msg)

	case types.OpSetChild:
		prev := w.store.SwapChild(msg.Node, msg.To)
		w.send(types.SetSibling(msg.To, prev, msg.Req))

	case types.OpSetSibling:
		w.store.SetSibling(msg.Node, msg.To)
		w.out.SendToDriver(types.UnionDone(msg.Req))
		w.collector.IncUnionDone()

	case types.OpSetParent:
		w.store.SetParent(msg.Node, msg.To)

	case types.OpFind:
		w.find(msg)

	case types.OpShutdown:
		if msg.Shard != w.shardID {
			panic(fmt.Sprintf("shard %d: Shutdown for shard %d", w.shardID, msg.Shard))
		}
		w.shutdownReq = msg.Req
		w.shutdownSeen = true

	default:
		panic(fmt.Sprintf("shard %d: unknown op %d", w.shardID, msg.Op))
	}
}

// union performs one hop of the distributed union walk.
//
// At a root, the link is installed and the SetChild→SetSibling→UnionDone
// chain starts at the new parent. Otherwise the walk recurses to the
// current parent's shard. Either way, the node one level below the current
// frame is re-pointed at the parent seen here, collapsing two edges into
// one; child == node marks the first hop, where there is nothing below to
// compress.
func (w *Worker) union(msg types.ShardMessage) {
	parent, ok := w.store.GetParent(msg.Node)
	if !ok {
		w.store.SetParent(msg.Node, msg.To)
		w.send(types.SetChild(msg.To, msg.Node, msg.Req))
		parent = msg.To
	} else {
		w.send(types.Union(parent, msg.To, msg.Node, msg.Req))
	}
	if msg.Child != msg.Node {
		w.send(types.SetParent(msg.Child, parent))
	}
}

// find performs one hop of the distributed find walk, compressing the same
// way union does.
func (w *Worker) find(msg types.ShardMessage) {
	parent, ok := w.store.GetParent(msg.Node)
	if !ok {
		w.out.SendToDriver(types.FindDone(msg.Req, msg.Node))
		w.collector.IncFindDone()
		return
	}
	w.send(types.Find(parent, msg.Node, msg.Req))
	if msg.Child != msg.Node {
		w.send(types.SetParent(msg.Child, parent))
	}
}
