package element

import (
	"sync/atomic"

	"github.com/vango-dev/viewcore/pkg/viewid"
)

// Allocator hands out element handles. Handles are never reused.
type Allocator struct {
	next atomic.Uint64
}

// Next returns a fresh handle. The first handle is 1.
func (a *Allocator) Next() Handle {
	return Handle(a.next.Add(1))
}

// Script records the ops of one reconciliation pass.
type Script struct {
	alloc *Allocator
	ops   []Op
}

// NewScript creates a script that allocates handles from alloc.
func NewScript(alloc *Allocator) *Script {
	return &Script{alloc: alloc, ops: make([]Op, 0, 16)}
}

// Create allocates a handle for a new detached element.
func (s *Script) Create(tag string, path viewid.Path) Handle {
	h := s.alloc.Next()
	s.ops = append(s.ops, Op{Kind: OpCreate, Handle: h, Tag: tag, Path: path.Clone()})
	return h
}

// SetAttr records an attribute write.
func (s *Script) SetAttr(h Handle, key, value string) {
	s.ops = append(s.ops, Op{Kind: OpSetAttr, Handle: h, Key: key, Value: value})
}

// RemoveAttr records an attribute removal.
func (s *Script) RemoveAttr(h Handle, key string) {
	s.ops = append(s.ops, Op{Kind: OpRemoveAttr, Handle: h, Key: key})
}

// SetText records a text content write.
func (s *Script) SetText(h Handle, text string) {
	s.ops = append(s.ops, Op{Kind: OpSetText, Handle: h, Value: text})
}

// Insert records attaching a detached element under parent at index.
func (s *Script) Insert(parent Handle, index int, h Handle) {
	s.ops = append(s.ops, Op{Kind: OpInsert, Handle: h, Parent: parent, Index: index})
}

// Move records moving an attached child of parent to index.
func (s *Script) Move(parent Handle, index int, h Handle) {
	s.ops = append(s.ops, Op{Kind: OpMove, Handle: h, Parent: parent, Index: index})
}

// Destroy records detaching and freeing an element subtree.
func (s *Script) Destroy(h Handle) {
	s.ops = append(s.ops, Op{Kind: OpDestroy, Handle: h})
}

// Len returns the number of recorded ops.
func (s *Script) Len() int {
	return len(s.ops)
}

// Ops returns the recorded ops.
func (s *Script) Ops() []Op {
	return s.ops
}

// Take returns the recorded ops and resets the script for the next pass.
func (s *Script) Take() []Op {
	ops := s.ops
	s.ops = make([]Op, 0, cap(ops))
	return ops
}
