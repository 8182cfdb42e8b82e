package wire

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/coalesce/types"
)

// Type discriminants for the envelope set.
const (
	HelloType       = "hello"
	IDType          = "id"
	ShardBatchType  = "shard_messages"
	DriverBatchType = "driver_messages"
)

// PeerAddr is a peer endpoint on the wire: 4 (v4) or 16 (v6) raw address
// bytes plus a port.
type PeerAddr struct {
	IP   []byte `msgpack:"ip"`
	Port uint16 `msgpack:"port"`
}

// NewPeerAddr converts a parsed address to its wire form.
func NewPeerAddr(addr netip.AddrPort) PeerAddr {
	ip := addr.Addr()
	raw := ip.AsSlice()
	return PeerAddr{IP: raw, Port: addr.Port()}
}

// AddrPort converts the wire form back to a netip.AddrPort.
func (a PeerAddr) AddrPort() (netip.AddrPort, error) {
	ip, ok := netip.AddrFromSlice(a.IP)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("wire: invalid address bytes (len %d)", len(a.IP))
	}
	return netip.AddrPortFrom(ip, a.Port), nil
}

func (a PeerAddr) String() string {
	return net.JoinHostPort(net.IP(a.IP).String(), fmt.Sprint(a.Port))
}

// Hello is the initiator's first frame to each peer: the peer's assigned id,
// the per-process shard count, and the higher-numbered peers it must dial.
type Hello struct {
	Type          string     `msgpack:"type"`
	ID            uint16     `msgpack:"id"`
	ShardsPerPeer uint16     `msgpack:"num_shard_per_system"`
	ConnectTo     []PeerAddr `msgpack:"connect_to"`
}

// ID is the first frame on a peer-to-peer mesh connection, identifying the
// dialing peer.
type ID struct {
	Type string `msgpack:"type"`
	ID   uint16 `msgpack:"id"`
}

// ShardBatch carries a batch of shard messages for one destination shard.
type ShardBatch struct {
	Type    string               `msgpack:"type"`
	ShardID uint16               `msgpack:"shard_id"`
	Batch   []types.ShardMessage `msgpack:"batch"`
}

// DriverBatch carries a batch of completions for one destination driver.
type DriverBatch struct {
	Type     string                `msgpack:"type"`
	DriverID uint16                `msgpack:"driver_idx"`
	Batch    []types.DriverMessage `msgpack:"batch"`
}

func encode(v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return Seal(payload), nil
}

// EncodeHello encodes a Hello as a complete frame.
func EncodeHello(id, shardsPerPeer uint16, connectTo []PeerAddr) ([]byte, error) {
	return encode(&Hello{Type: HelloType, ID: id, ShardsPerPeer: shardsPerPeer, ConnectTo: connectTo})
}

// EncodeID encodes an ID as a complete frame.
func EncodeID(id uint16) ([]byte, error) {
	return encode(&ID{Type: IDType, ID: id})
}

// EncodeShardBatch encodes a shard message batch as a complete frame.
func EncodeShardBatch(shardID uint16, batch []types.ShardMessage) ([]byte, error) {
	return encode(&ShardBatch{Type: ShardBatchType, ShardID: shardID, Batch: batch})
}

// EncodeDriverBatch encodes a driver message batch as a complete frame.
func EncodeDriverBatch(driverID uint16, batch []types.DriverMessage) ([]byte, error) {
	return encode(&DriverBatch{Type: DriverBatchType, DriverID: driverID, Batch: batch})
}

// DecodeFrame decodes a payload into one of *Hello, *ID, *ShardBatch, or
// *DriverBatch based on the type tag. Anything else is ErrBadPayload.
func DecodeFrame(payload []byte) (any, error) {
	// msgpack ignores map keys the target struct does not name, so a
	// tag-only decode reads just the discriminant.
	var tag struct {
		Type string `msgpack:"type"`
	}
	if err := msgpack.Unmarshal(payload, &tag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch tag.Type {
	case HelloType:
		return decodeAs[Hello](payload)
	case IDType:
		return decodeAs[ID](payload)
	case ShardBatchType:
		return decodeAs[ShardBatch](payload)
	case DriverBatchType:
		return decodeAs[DriverBatch](payload)
	case "":
		return nil, fmt.Errorf("%w: missing type tag", ErrBadPayload)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadPayload, tag.Type)
	}
}

func decodeAs[T any](payload []byte) (*T, error) {
	v := new(T)
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return v, nil
}
