package storage

import (
	"fmt"

	"github.com/pithecene-io/coalesce/types"
)

type nodeData struct {
	parent  types.Key
	child   types.Key
	sibling types.Key
}

// RAM is the in-memory backend: a contiguous vector indexed by the key's
// shard-local id.
type RAM struct {
	store []nodeData
}

// NewRAM returns an empty in-memory store.
func NewRAM() *RAM {
	return &RAM{}
}

func (s *RAM) node(key types.Key) *nodeData {
	id := key.LocalID()
	if id >= uint64(len(s.store)) {
		panic(fmt.Sprintf("storage: key %v not allocated on this shard", key))
	}
	return &s.store[id]
}

// get translates the absent = self-reference convention.
func (s *RAM) get(key, stored types.Key) (types.Key, bool) {
	if stored == key {
		return 0, false
	}
	return stored, true
}

func (s *RAM) AddNode(shard uint16) types.Key {
	key := types.NewKey(shard, uint64(len(s.store)))
	s.store = append(s.store, nodeData{parent: key, child: key, sibling: key})
	return key
}

func (s *RAM) SetParent(key, value types.Key) {
	s.node(key).parent = value
}

func (s *RAM) SetSibling(key, value types.Key) {
	s.node(key).sibling = value
}

func (s *RAM) SwapChild(key, value types.Key) types.Key {
	n := s.node(key)
	old := n.child
	n.child = value
	return old
}

func (s *RAM) GetParent(key types.Key) (types.Key, bool) {
	return s.get(key, s.node(key).parent)
}

func (s *RAM) GetSibling(key types.Key) (types.Key, bool) {
	return s.get(key, s.node(key).sibling)
}

func (s *RAM) GetChild(key types.Key) (types.Key, bool) {
	return s.get(key, s.node(key).child)
}

func (s *RAM) Len() uint64 {
	return uint64(len(s.store))
}

var _ Storage = (*RAM)(nil)
