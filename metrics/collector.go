// Package metrics provides per-process counter collection.
//
// The Collector accumulates counters across all shard workers and
// forwarders of one peer. It is a leaf package with no internal
// dependencies. All increment methods are nil-receiver safe so hot paths
// can run without a collector wired in.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of the counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Shard workers
	BatchesReceived   int64
	MessagesProcessed int64
	LocalStackHits    int64
	Flushes           int64

	// Operations completed
	NodesAdded    int64
	UnionsDone    int64
	FindsDone     int64
	ShutdownsDone int64

	// Forwarders
	FramesSent     int64
	FramesReceived int64
	DecodeErrors   int64

	// Dimensions (informational, set at construction)
	PeerID         uint16
	StorageBackend string
}

// Collector accumulates counters for one peer process.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	batchesReceived   int64
	messagesProcessed int64
	localStackHits    int64
	flushes           int64

	nodesAdded    int64
	unionsDone    int64
	findsDone     int64
	shutdownsDone int64

	framesSent     int64
	framesReceived int64
	decodeErrors   int64

	peerID         uint16
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(peerID uint16, storageBackend string) *Collector {
	return &Collector{peerID: peerID, storageBackend: storageBackend}
}

// AddBatchReceived records one inbound batch of n messages on a shard.
func (c *Collector) AddBatchReceived(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.batchesReceived++
	c.messagesProcessed += int64(n)
	c.mu.Unlock()
}

// AddLocalStackHits records messages that stayed on their own shard via the
// local pending stack.
func (c *Collector) AddLocalStackHits(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.localStackHits += int64(n)
	c.messagesProcessed += int64(n)
	c.mu.Unlock()
}

// IncFlush records one outbound flush.
func (c *Collector) IncFlush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.flushes++
	c.mu.Unlock()
}

// IncNodeAdded records one allocated node.
func (c *Collector) IncNodeAdded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.nodesAdded++
	c.mu.Unlock()
}

// IncUnionDone records one completed union.
func (c *Collector) IncUnionDone() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.unionsDone++
	c.mu.Unlock()
}

// IncFindDone records one completed find.
func (c *Collector) IncFindDone() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.findsDone++
	c.mu.Unlock()
}

// IncShutdownDone records one shard acknowledging shutdown.
func (c *Collector) IncShutdownDone() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.shutdownsDone++
	c.mu.Unlock()
}

// IncFrameSent records one frame written to a peer.
func (c *Collector) IncFrameSent() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesSent++
	c.mu.Unlock()
}

// IncFrameReceived records one frame read from a peer.
func (c *Collector) IncFrameReceived() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesReceived++
	c.mu.Unlock()
}

// IncDecodeError records one undecodable inbound frame.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
}

// Snapshot returns a consistent copy of all counters.
// Nil-receiver safe; returns the zero Snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		BatchesReceived:   c.batchesReceived,
		MessagesProcessed: c.messagesProcessed,
		LocalStackHits:    c.localStackHits,
		Flushes:           c.flushes,
		NodesAdded:        c.nodesAdded,
		UnionsDone:        c.unionsDone,
		FindsDone:         c.findsDone,
		ShutdownsDone:     c.shutdownsDone,
		FramesSent:        c.framesSent,
		FramesReceived:    c.framesReceived,
		DecodeErrors:      c.decodeErrors,
		PeerID:            c.peerID,
		StorageBackend:    c.storageBackend,
	}
}
