package forward

import (
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/zap"

	"github.com/pithecene-io/coalesce/driver"
	"github.com/pithecene-io/coalesce/metrics"
	"github.com/pithecene-io/coalesce/shard"
	"github.com/pithecene-io/coalesce/storage"
	"github.com/pithecene-io/coalesce/system"
	"github.com/pithecene-io/coalesce/wire"
)

// Deployment is one peer's view of the cluster after bootstrap: its local
// shard workers, its driver, and a forwarder per remote peer.
type Deployment struct {
	SelfID uint16
	Driver *driver.Driver
	System *system.System

	forwarders map[uint16]*Forwarder
	handles    []*shard.Handle
}

// Config assembles a peer.
type Config struct {
	ShardsPerPeer uint16
	// NewStore builds the storage for one local shard (global shard id).
	// Nil means in-memory.
	NewStore func(shard uint16) storage.Storage
	// Logger may be nil.
	Logger *zap.Logger
	// Collector may be nil.
	Collector *metrics.Collector
}

// Connect bootstraps the initiator (peer 0): dial each peer in order, send
// its Hello, then assemble endpoint tables over the resulting sockets.
//
// peers lists peers 1..P-1 in id order.
func Connect(cfg Config, peers []netip.AddrPort) (*Deployment, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conns := make(map[uint16]peerConn, len(peers))
	for i, addr := range peers {
		id := uint16(i + 1)
		conn, err := net.Dial("tcp", addr.String())
		if err != nil {
			closeAll(conns)
			return nil, fmt.Errorf("forward: dial peer %d at %s: %w", id, addr, err)
		}

		connectTo := make([]wire.PeerAddr, 0, len(peers)-i-1)
		for _, later := range peers[i+1:] {
			connectTo = append(connectTo, wire.NewPeerAddr(later))
		}
		frame, err := wire.EncodeHello(id, cfg.ShardsPerPeer, connectTo)
		if err != nil {
			closeAll(conns)
			return nil, err
		}
		if err := sendFrame(conn, frame); err != nil {
			closeAll(conns)
			return nil, fmt.Errorf("forward: hello to peer %d: %w", id, err)
		}
		logger.Info("sent hello", zap.Uint16("peer", id), zap.Int("connect_to", len(connectTo)))
		conns[id] = peerConn{conn: conn, dec: wire.NewReader(conn)}
	}

	numPeers := uint16(len(peers) + 1)
	return assemble(cfg, logger, 0, numPeers, conns)
}

// Serve bootstraps a non-initiator peer on an accepting listener: read the
// initiator's Hello, accept Id connections from every lower-numbered peer,
// dial every higher-numbered one, then assemble endpoint tables.
//
// The listener is closed once the mesh is complete.
func Serve(cfg Config, lst net.Listener) (*Deployment, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conns := make(map[uint16]peerConn)

	first, err := lst.Accept()
	if err != nil {
		return nil, fmt.Errorf("forward: accept initiator: %w", err)
	}
	dec := wire.NewReader(first)
	env, err := readEnvelope(dec)
	if err != nil {
		_ = first.Close()
		return nil, fmt.Errorf("forward: read hello: %w", err)
	}
	hello, ok := env.(*wire.Hello)
	if !ok {
		_ = first.Close()
		return nil, fmt.Errorf("forward: first frame from initiator is %T, want hello", env)
	}
	selfID := hello.ID
	if selfID == 0 {
		_ = first.Close()
		return nil, fmt.Errorf("forward: hello assigned reserved peer id 0")
	}
	conns[0] = peerConn{conn: first, dec: dec}
	logger.Info("received hello",
		zap.Uint16("self_id", selfID),
		zap.Uint16("shards_per_peer", hello.ShardsPerPeer),
		zap.Int("connect_to", len(hello.ConnectTo)))

	// Lower-numbered peers dial us and identify themselves.
	for i := uint16(0); i < selfID-1; i++ {
		conn, err := lst.Accept()
		if err != nil {
			closeAll(conns)
			return nil, fmt.Errorf("forward: accept peer: %w", err)
		}
		dec := wire.NewReader(conn)
		env, err := readEnvelope(dec)
		if err != nil {
			_ = conn.Close()
			closeAll(conns)
			return nil, fmt.Errorf("forward: read id: %w", err)
		}
		id, ok := env.(*wire.ID)
		if !ok {
			_ = conn.Close()
			closeAll(conns)
			return nil, fmt.Errorf("forward: first frame from peer is %T, want id", env)
		}
		if id.ID == 0 || id.ID >= selfID || hasConn(conns, id.ID) {
			_ = conn.Close()
			closeAll(conns)
			return nil, fmt.Errorf("forward: unexpected peer id %d", id.ID)
		}
		conns[id.ID] = peerConn{conn: conn, dec: dec}
	}

	// We dial the higher-numbered peers, identifying ourselves.
	for i, pa := range hello.ConnectTo {
		id := selfID + 1 + uint16(i)
		addr, err := pa.AddrPort()
		if err != nil {
			closeAll(conns)
			return nil, err
		}
		conn, err := net.Dial("tcp", addr.String())
		if err != nil {
			closeAll(conns)
			return nil, fmt.Errorf("forward: dial peer %d at %s: %w", id, addr, err)
		}
		frame, err := wire.EncodeID(selfID)
		if err != nil {
			closeAll(conns)
			return nil, err
		}
		if err := sendFrame(conn, frame); err != nil {
			_ = conn.Close()
			closeAll(conns)
			return nil, fmt.Errorf("forward: id to peer %d: %w", id, err)
		}
		conns[id] = peerConn{conn: conn, dec: wire.NewReader(conn)}
	}

	_ = lst.Close()

	numPeers := selfID + 1 + uint16(len(hello.ConnectTo))
	full := cfg
	full.ShardsPerPeer = hello.ShardsPerPeer
	return assemble(full, logger, selfID, numPeers, conns)
}

type peerConn struct {
	conn net.Conn
	dec  *wire.Reader
}

func hasConn(conns map[uint16]peerConn, id uint16) bool {
	_, ok := conns[id]
	return ok
}

func closeAll(conns map[uint16]peerConn) {
	for _, pc := range conns {
		_ = pc.conn.Close()
	}
}

// assemble builds the endpoint tables, spawns local shard workers, starts
// the forwarders, and creates the local driver.
//
// Peer p owns shard ids [p*shardsPerPeer, (p+1)*shardsPerPeer); shard id /
// shardsPerPeer recovers the peer. Each peer hosts driver id p.
func assemble(cfg Config, logger *zap.Logger, selfID, numPeers uint16, conns map[uint16]peerConn) (*Deployment, error) {
	newStore := cfg.NewStore
	if newStore == nil {
		newStore = func(uint16) storage.Storage { return storage.NewRAM() }
	}

	forwarders := make(map[uint16]*Forwarder, len(conns))
	for id, pc := range conns {
		forwarders[id] = NewForwarder(id, pc.conn, pc.dec, logger, cfg.Collector)
	}

	totalShards := numPeers * cfg.ShardsPerPeer
	shardAccess := make([]system.ShardAccess, totalShards)
	localShards := make(map[uint16]*system.LocalShard)
	for s := uint16(0); s < totalShards; s++ {
		owner := s / cfg.ShardsPerPeer
		if owner == selfID {
			ls := system.NewLocalShard()
			localShards[s] = ls
			shardAccess[s] = ls
		} else {
			shardAccess[s] = system.RemoteShard{Sink: forwarders[owner], ShardID: s}
		}
	}

	driverAccess := make([]system.DriverAccess, numPeers)
	var localDriver *system.LocalDriver
	for d := uint16(0); d < numPeers; d++ {
		if d == selfID {
			localDriver = system.NewLocalDriver()
			driverAccess[d] = localDriver
		} else {
			driverAccess[d] = system.RemoteDriver{Sink: forwarders[d], DriverID: d}
		}
	}

	sys := system.New(shardAccess, driverAccess)

	dep := &Deployment{
		SelfID:     selfID,
		System:     sys,
		forwarders: forwarders,
	}
	for s, ls := range localShards {
		dep.handles = append(dep.handles, shard.Spawn(shard.Config{
			ShardID:   s,
			Store:     newStore(s),
			Inbound:   ls.Queue,
			System:    sys,
			Logger:    logger,
			Collector: cfg.Collector,
		}))
	}
	for _, f := range forwarders {
		f.Start(sys)
	}
	dep.Driver = driver.New(selfID, sys, localDriver.Queue, logger)

	logger.Info("bootstrap complete",
		zap.Uint16("peers", numPeers),
		zap.Uint16("total_shards", totalShards),
		zap.Int("local_shards", len(localShards)))
	return dep, nil
}

// Wait joins the local shard workers. For non-initiator peers this returns
// once the initiator's driver has shut the cluster down.
func (d *Deployment) Wait() {
	for _, h := range d.handles {
		h.Wait()
	}
}

// Close drains and tears down the forwarders. Call after Wait (workers
// have flushed their last acknowledgements by then). Returns the first
// transport error observed on any peer link.
func (d *Deployment) Close() error {
	var first error
	for _, f := range d.forwarders {
		if err := f.Shutdown(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
