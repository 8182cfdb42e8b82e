// Package storage defines the per-shard node store.
//
// Each node record holds three Key fields: parent, child (head of the
// intrusive child list), and sibling (next pointer in the parent's child
// list). A field equal to the node's own key is the canonical "absent"
// marker; accessors translate it to (zero, false).
//
// A Storage instance is owned by exactly one shard worker and is never
// accessed concurrently.
package storage

import "github.com/pithecene-io/coalesce/types"

// Storage is the per-shard key→(parent, child, sibling) map plus the
// shard-local id allocator.
type Storage interface {
	// AddNode allocates a fresh local id on shard, initializes all three
	// fields to self, and returns the packed key.
	AddNode(shard uint16) types.Key

	// SetParent writes key's parent field.
	SetParent(key, value types.Key)

	// SetSibling writes key's sibling field.
	SetSibling(key, value types.Key)

	// SwapChild writes key's child field and returns the previous value,
	// which may be key itself when the list was empty.
	SwapChild(key, value types.Key) types.Key

	// GetParent returns key's parent, or false when key is a root.
	GetParent(key types.Key) (types.Key, bool)

	// GetSibling returns key's sibling, or false at end-of-list.
	GetSibling(key types.Key) (types.Key, bool)

	// GetChild returns the head of key's child list, or false when empty.
	GetChild(key types.Key) (types.Key, bool)

	// Len returns the number of nodes allocated on this shard.
	Len() uint64
}
