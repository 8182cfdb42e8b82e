// Package wire implements the peer link codec.
//
// A connection carries a sequence of frames: a uint32 little-endian
// payload length followed by that many bytes of msgpack. Payloads are
// tagged maps; the "type" tag selects the envelope type.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPayload caps a single frame at 16 MiB including its length prefix, so
// a payload may be at most 16 MiB minus prefixLen bytes. A length prefix
// above this is treated as stream corruption rather than honored.
const MaxPayload = 16<<20 - prefixLen

// prefixLen is the width of the length prefix.
const prefixLen = 4

// Sentinel error classes for frame decoding. All are fatal to the
// connection they occur on.
var (
	// ErrTruncated means the stream stopped inside a frame.
	ErrTruncated = errors.New("wire: stream ended mid-frame")
	// ErrOversize means a length prefix exceeded MaxPayload.
	ErrOversize = errors.New("wire: frame length exceeds limit")
	// ErrBadPayload means a payload did not decode as any known envelope.
	ErrBadPayload = errors.New("wire: payload is not a valid envelope")
)

// Reader pulls frames off one peer connection.
type Reader struct {
	src    *bufio.Reader
	prefix [prefixLen]byte
}

// NewReader wraps r. Raw sockets get a bufio layer so small frames do not
// each cost a syscall; an existing bufio.Reader is used as-is.
func NewReader(r io.Reader) *Reader {
	src, ok := r.(*bufio.Reader)
	if !ok {
		src = bufio.NewReader(r)
	}
	return &Reader{src: src}
}

// Next returns the payload of the next frame.
//
// io.EOF is returned only when the stream ends exactly on a frame
// boundary; a stream cut anywhere else yields ErrTruncated, and a length
// prefix above MaxPayload yields ErrOversize.
func (r *Reader) Next() ([]byte, error) {
	size, err := r.length()
	if err != nil {
		return nil, err
	}
	if size > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrOversize, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.src, payload); err != nil {
		return nil, fmt.Errorf("%w: short payload: %v", ErrTruncated, err)
	}
	return payload, nil
}

// length consumes one length prefix. End of stream before the first
// prefix byte is a clean io.EOF; inside the prefix it is ErrTruncated.
func (r *Reader) length() (uint32, error) {
	switch _, err := io.ReadFull(r.src, r.prefix[:]); err {
	case nil:
		return binary.LittleEndian.Uint32(r.prefix[:]), nil
	case io.EOF:
		return 0, io.EOF
	default:
		return 0, fmt.Errorf("%w: short length prefix: %v", ErrTruncated, err)
	}
}

// Seal prefixes a payload with its little-endian length, producing a
// complete frame ready to write.
func Seal(payload []byte) []byte {
	frame := make([]byte, prefixLen+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[prefixLen:], payload)
	return frame
}
