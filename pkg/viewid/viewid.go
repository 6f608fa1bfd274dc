// Package viewid assigns stable identities to positions in a view tree.
//
// An ID names one child within its parent. IDs are derived from structure,
// never from allocation order, so two trees built from equal descriptions
// yield equal paths:
//
//   - children of a fixed-arity parent, and unkeyed entries of a sequence,
//     get positional IDs (Position)
//   - keyed sequence entries get an ID derived from the key (Key), so moving
//     an entry does not change its identity
//
// Positional and keyed IDs live in disjoint halves of the uint64 space.
package viewid

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// keyedBit marks an ID derived from an explicit key.
const keyedBit = uint64(1) << 63

// ID identifies a child within its parent.
type ID uint64

// RootID is the ID of the root node of every tree.
const RootID = ID(0)

// Position returns the ID of the child at index i.
func Position(i int) ID {
	if i < 0 {
		panic("viewid: negative position")
	}
	return ID(uint64(i) &^ keyedBit)
}

// Key returns the ID of a sequence entry with the given explicit key.
func Key(key string) ID {
	return ID(xxhash.Sum64String(key) | keyedBit)
}

// IsKeyed reports whether the ID was derived from an explicit key.
func (id ID) IsKeyed() bool {
	return uint64(id)&keyedBit != 0
}

// Index returns the position of a positional ID, or -1 for keyed IDs.
func (id ID) Index() int {
	if id.IsKeyed() {
		return -1
	}
	return int(id)
}

// String returns "#3" for positional IDs and "k:<hex>" for keyed IDs.
func (id ID) String() string {
	if id.IsKeyed() {
		return "k:" + strconv.FormatUint(uint64(id)&^keyedBit, 16)
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}
