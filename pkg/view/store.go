package view

import (
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

// Ref is a handle to a node in a Store. A Ref is invalidated when its node is
// released or replaced; use Store.Valid to check.
type Ref struct {
	index int32
	gen   uint32
}

// noSlot marks the absence of a slot index.
const noSlot = int32(-1)

// slot holds the associated state of one view node.
type slot struct {
	gen  uint32
	live bool

	id     viewid.ID
	key    string
	parent int32

	// children in element order.
	children []int32

	// view is the last description consumed by Build or Rebuild. For a
	// failed slot it is the description to materialize on the next pass.
	view  View
	state any

	// el is the element the node presents to its parent. owned is set when
	// the node created el itself rather than passing a child's through.
	el    element.Handle
	owned element.Handle

	cleanups []func()
	failed   bool
	err      error
}

// Store is the associated-state tree. Nodes live in a slice arena and refer
// to each other by index, so no pointers link state and elements.
//
// A Store is not safe for concurrent use; Root serializes access.
type Store struct {
	slots []slot
	free  []int32
	root  int32
	live  int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{root: noSlot}
}

func (s *Store) alloc(parent int32, id viewid.ID) int32 {
	var idx int32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot{})
		idx = int32(len(s.slots) - 1)
	}
	sl := &s.slots[idx]
	sl.live = true
	sl.id = id
	sl.parent = parent
	s.live++
	return idx
}

// release frees a slot. Children must already be released.
func (s *Store) release(idx int32) {
	sl := &s.slots[idx]
	gen := sl.gen + 1
	children := sl.children[:0]
	*sl = slot{gen: gen, parent: noSlot, children: children}
	s.free = append(s.free, idx)
	s.live--
	if s.root == idx {
		s.root = noSlot
	}
}

// reset clears a slot's contents in place for rematerialization, keeping its
// identity and position. Outstanding Refs to the old node become invalid.
func (s *Store) reset(idx int32) {
	sl := &s.slots[idx]
	*sl = slot{
		gen:      sl.gen + 1,
		live:     true,
		id:       sl.id,
		key:      sl.key,
		parent:   sl.parent,
		children: sl.children[:0],
	}
}

func (s *Store) ref(idx int32) Ref {
	return Ref{index: idx, gen: s.slots[idx].gen}
}

func (s *Store) slot(r Ref) (*slot, bool) {
	if r.index < 0 || int(r.index) >= len(s.slots) {
		return nil, false
	}
	sl := &s.slots[r.index]
	if !sl.live || sl.gen != r.gen {
		return nil, false
	}
	return sl, true
}

func (s *Store) childIndex(parent int32, id viewid.ID) int32 {
	for _, c := range s.slots[parent].children {
		if s.slots[c].id == id {
			return c
		}
	}
	return noSlot
}

// Len returns the number of live nodes.
func (s *Store) Len() int {
	return s.live
}

// Root returns the root node, if the tree has been built.
func (s *Store) Root() (Ref, bool) {
	if s.root == noSlot {
		return Ref{}, false
	}
	return s.ref(s.root), true
}

// Valid reports whether r still refers to a live node.
func (s *Store) Valid(r Ref) bool {
	_, ok := s.slot(r)
	return ok
}

// Child returns the child of r with the given id.
func (s *Store) Child(r Ref, id viewid.ID) (Ref, bool) {
	if _, ok := s.slot(r); !ok {
		return Ref{}, false
	}
	c := s.childIndex(r.index, id)
	if c == noSlot {
		return Ref{}, false
	}
	return s.ref(c), true
}

// Children returns the ids of r's children in order.
func (s *Store) Children(r Ref) []viewid.ID {
	sl, ok := s.slot(r)
	if !ok {
		return nil
	}
	out := make([]viewid.ID, len(sl.children))
	for i, c := range sl.children {
		out[i] = s.slots[c].id
	}
	return out
}

// Resolve walks path from the root. The first element must be viewid.RootID.
func (s *Store) Resolve(path viewid.Path) (Ref, error) {
	if s.root == noSlot || len(path) == 0 || path[0] != viewid.RootID {
		return Ref{}, &UnknownPathError{Path: path, Depth: 0}
	}
	idx := s.root
	for depth := 1; depth < len(path); depth++ {
		idx = s.childIndex(idx, path[depth])
		if idx == noSlot {
			return Ref{}, &UnknownPathError{Path: path, Depth: depth}
		}
	}
	return s.ref(idx), nil
}

// Path returns the path from the root to r.
func (s *Store) Path(r Ref) viewid.Path {
	if _, ok := s.slot(r); !ok {
		return nil
	}
	var rev []viewid.ID
	for idx := r.index; idx != noSlot; idx = s.slots[idx].parent {
		rev = append(rev, s.slots[idx].id)
	}
	out := make(viewid.Path, len(rev))
	for i, id := range rev {
		out[len(rev)-1-i] = id
	}
	return out
}

// Element returns the element handle r presents to its parent.
func (s *Store) Element(r Ref) element.Handle {
	if sl, ok := s.slot(r); ok {
		return sl.el
	}
	return 0
}

// State returns the associated state of r.
func (s *Store) State(r Ref) any {
	if sl, ok := s.slot(r); ok {
		return sl.state
	}
	return nil
}

// View returns the last description r was built or rebuilt from.
func (s *Store) View(r Ref) View {
	if sl, ok := s.slot(r); ok {
		return sl.view
	}
	return nil
}

// Key returns the explicit key of r, if it has one.
func (s *Store) Key(r Ref) (string, bool) {
	if sl, ok := s.slot(r); ok && sl.id.IsKeyed() {
		return sl.key, true
	}
	return "", false
}

// Failed reports whether r holds a placeholder awaiting rematerialization.
func (s *Store) Failed(r Ref) bool {
	if sl, ok := s.slot(r); ok {
		return sl.failed
	}
	return false
}

// Err returns the error that left r as a placeholder.
func (s *Store) Err(r Ref) error {
	if sl, ok := s.slot(r); ok {
		return sl.err
	}
	return nil
}

// ReplaceSubtree releases every descendant of r and clears r in place so it
// can be materialized again under the same identity. It returns the new Ref;
// r itself becomes invalid. Callers must have run teardown first.
func (s *Store) ReplaceSubtree(r Ref) (Ref, bool) {
	if _, ok := s.slot(r); !ok {
		return Ref{}, false
	}
	s.releaseChildren(r.index)
	s.reset(r.index)
	return s.ref(r.index), true
}

func (s *Store) releaseChildren(idx int32) {
	children := s.slots[idx].children
	for _, c := range children {
		s.releaseChildren(c)
		s.release(c)
	}
	s.slots[idx].children = children[:0]
}

// Walk visits every live node depth-first in child order.
func (s *Store) Walk(fn func(r Ref, path viewid.Path) bool) {
	if s.root == noSlot {
		return
	}
	s.walk(s.root, viewid.Path{s.slots[s.root].id}, fn)
}

func (s *Store) walk(idx int32, path viewid.Path, fn func(Ref, viewid.Path) bool) bool {
	if !fn(s.ref(idx), path) {
		return false
	}
	for _, c := range s.slots[idx].children {
		if !s.walk(c, path.Append(s.slots[c].id), fn) {
			return false
		}
	}
	return true
}
