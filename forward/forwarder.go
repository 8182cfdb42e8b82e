// Package forward moves message batches between peers: one bidirectional
// forwarder per remote peer, plus the mesh bootstrap that builds each
// process's endpoint tables.
package forward

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/pithecene-io/coalesce/metrics"
	"github.com/pithecene-io/coalesce/system"
	"github.com/pithecene-io/coalesce/wire"
)

// Forwarder owns the socket to one remote peer.
//
// Outbound: local workers and drivers enqueue encoded frames; a writer
// goroutine drains the queue and writes length-prefixed frames. Inbound: a
// reader goroutine decodes frames and delivers each batch to the local
// endpoint it names. Both halves are fatal on error; local shards keep
// running and may enqueue messages that never deliver.
type Forwarder struct {
	peerID    uint16
	conn      net.Conn
	dec       *wire.Reader
	outbound  *system.Queue[[]byte]
	logger    *zap.Logger
	collector *metrics.Collector

	writerDone chan struct{}
	readerDone chan struct{}
	errOnce    sync.Once
	err        error
	shutting   bool
	mu         sync.Mutex
}

// NewForwarder wraps an established, handshaken connection. The frame
// reader must be the one used during the handshake so read-ahead bytes
// are not lost. Logger and collector may be nil.
func NewForwarder(peerID uint16, conn net.Conn, dec *wire.Reader, logger *zap.Logger, collector *metrics.Collector) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{
		peerID:     peerID,
		conn:       conn,
		dec:        dec,
		outbound:   system.NewQueue[[]byte](),
		logger:     logger.With(zap.Uint16("remote_peer", peerID)),
		collector:  collector,
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// EnqueueFrame hands an encoded frame to the writer. Never blocks.
func (f *Forwarder) EnqueueFrame(frame []byte) {
	f.outbound.Push(frame)
}

var _ system.RemoteSink = (*Forwarder)(nil)

// Start launches the writer and reader. sys must hold the local endpoints
// inbound batches are delivered to.
func (f *Forwarder) Start(sys *system.System) {
	go func() {
		defer close(f.writerDone)
		f.writeLoop()
	}()
	go func() {
		defer close(f.readerDone)
		f.readLoop(sys)
	}()
}

func (f *Forwarder) writeLoop() {
	w := bufio.NewWriter(f.conn)
	for {
		frame, ok := f.outbound.Recv()
		if !ok {
			if err := w.Flush(); err != nil {
				f.fail(fmt.Errorf("flush to peer %d: %w", f.peerID, err))
			}
			// Writer done: no more outbound traffic from this process.
			if err := closeWrite(f.conn); err != nil {
				f.logger.Debug("close write half", zap.Error(err))
			}
			return
		}
		for {
			if _, err := w.Write(frame); err != nil {
				f.fail(fmt.Errorf("write to peer %d: %w", f.peerID, err))
				return
			}
			f.collector.IncFrameSent()
			frame, ok = f.outbound.TryRecv()
			if !ok {
				break
			}
		}
		if err := w.Flush(); err != nil {
			f.fail(fmt.Errorf("flush to peer %d: %w", f.peerID, err))
			return
		}
	}
}

func (f *Forwarder) readLoop(sys *system.System) {
	for {
		payload, err := f.dec.Next()
		if err != nil {
			if err == io.EOF {
				f.logger.Debug("peer closed inbound stream")
			} else if !f.isShuttingDown() {
				f.fail(fmt.Errorf("read from peer %d: %w", f.peerID, err))
			}
			return
		}
		f.collector.IncFrameReceived()

		decoded, err := wire.DecodeFrame(payload)
		if err != nil {
			f.collector.IncDecodeError()
			f.fail(fmt.Errorf("decode frame from peer %d: %w", f.peerID, err))
			return
		}

		switch m := decoded.(type) {
		case *wire.ShardBatch:
			ep, ok := sys.Shard(m.ShardID).(*system.LocalShard)
			if !ok {
				f.fail(fmt.Errorf("peer %d: batch for non-local shard %d", f.peerID, m.ShardID))
				return
			}
			ep.SendShardMessages(m.Batch)
		case *wire.DriverBatch:
			ep, ok := sys.Driver(m.DriverID).(*system.LocalDriver)
			if !ok {
				f.fail(fmt.Errorf("peer %d: batch for non-local driver %d", f.peerID, m.DriverID))
				return
			}
			ep.SendDriverMessages(m.Batch)
		default:
			// Hello/Id after bootstrap is a protocol violation.
			f.fail(fmt.Errorf("peer %d: unexpected %T after bootstrap", f.peerID, decoded))
			return
		}
	}
}

// Shutdown drains and closes the outbound half, then closes both socket
// halves and joins the goroutines. The peer's reader sees end-of-stream
// and exits cleanly. Returns the first transport error, if any.
func (f *Forwarder) Shutdown() error {
	f.mu.Lock()
	f.shutting = true
	f.mu.Unlock()

	f.outbound.Close()
	<-f.writerDone
	if err := f.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		f.logger.Debug("close connection", zap.Error(err))
	}
	<-f.readerDone
	return f.err
}

func (f *Forwarder) fail(err error) {
	f.errOnce.Do(func() {
		f.err = err
		f.logger.Error("forwarder failed", zap.Error(err))
		// Unblock the peer goroutines.
		f.outbound.Close()
		_ = f.conn.Close()
	})
}

func (f *Forwarder) isShuttingDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutting
}

// closeWrite half-closes TCP so the peer's reader sees EOF while inbound
// frames can still arrive.
func closeWrite(conn net.Conn) error {
	if tc, ok := conn.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	return nil
}

// sendFrame writes one frame synchronously. Bootstrap only.
func sendFrame(conn net.Conn, frame []byte) error {
	_, err := conn.Write(frame)
	return err
}

// readEnvelope reads and decodes one frame synchronously. Bootstrap only.
func readEnvelope(dec *wire.Reader) (any, error) {
	payload, err := dec.Next()
	if err != nil {
		return nil, err
	}
	return wire.DecodeFrame(payload)
}
