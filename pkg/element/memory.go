package element

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vango-dev/viewcore/pkg/viewid"
)

var (
	// ErrStaleHandle is returned when an op targets a handle that does not exist.
	ErrStaleHandle = errors.New("element: stale handle")

	// ErrAttached is returned when inserting an element that already has a parent.
	ErrAttached = errors.New("element: element already attached")

	// ErrNotChild is returned when moving an element that is not a child of Parent.
	ErrNotChild = errors.New("element: not a child of parent")

	// ErrIndex is returned for an out-of-range Insert/Move index.
	ErrIndex = errors.New("element: index out of range")
)

// OpError reports which op of a script failed.
type OpError struct {
	Index int
	Op    Op
	Err   error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("op %d %s: %v", e.Index, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error {
	return e.Err
}

// node is one element held by Memory.
type node struct {
	tag      string
	path     viewid.Path
	attrs    map[string]string
	text     string
	parent   Handle
	attached bool
	children []Handle
}

// Memory is an in-memory Tree that validates every op.
// It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	nodes map[Handle]*node
	root  []Handle

	applied int
}

// NewMemory creates an empty in-memory tree.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[Handle]*node)}
}

// Apply implements Tree. Ops are applied in order; the first failing op stops
// the script and is returned as an *OpError.
func (m *Memory) Apply(ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, op := range ops {
		if err := m.apply(op); err != nil {
			return &OpError{Index: i, Op: op, Err: err}
		}
		m.applied++
	}
	return nil
}

func (m *Memory) apply(op Op) error {
	switch op.Kind {
	case OpCreate:
		if _, exists := m.nodes[op.Handle]; exists || op.Handle == Root {
			return ErrAttached
		}
		m.nodes[op.Handle] = &node{tag: op.Tag, path: op.Path, attrs: make(map[string]string)}
		return nil

	case OpSetAttr, OpRemoveAttr, OpSetText:
		n, ok := m.nodes[op.Handle]
		if !ok {
			return ErrStaleHandle
		}
		switch op.Kind {
		case OpSetAttr:
			n.attrs[op.Key] = op.Value
		case OpRemoveAttr:
			delete(n.attrs, op.Key)
		default:
			n.text = op.Value
		}
		return nil

	case OpInsert:
		n, ok := m.nodes[op.Handle]
		if !ok {
			return ErrStaleHandle
		}
		if n.attached {
			return ErrAttached
		}
		list, err := m.childList(op.Parent)
		if err != nil {
			return err
		}
		if op.Index < 0 || op.Index > len(*list) {
			return ErrIndex
		}
		*list = insertAt(*list, op.Index, op.Handle)
		n.parent = op.Parent
		n.attached = true
		return nil

	case OpMove:
		n, ok := m.nodes[op.Handle]
		if !ok {
			return ErrStaleHandle
		}
		if !n.attached || n.parent != op.Parent {
			return ErrNotChild
		}
		list, err := m.childList(op.Parent)
		if err != nil {
			return err
		}
		if op.Index < 0 || op.Index >= len(*list) {
			return ErrIndex
		}
		*list = insertAt(removeHandle(*list, op.Handle), op.Index, op.Handle)
		return nil

	case OpDestroy:
		n, ok := m.nodes[op.Handle]
		if !ok {
			return ErrStaleHandle
		}
		if n.attached {
			if list, err := m.childList(n.parent); err == nil {
				*list = removeHandle(*list, op.Handle)
			}
		}
		m.free(op.Handle)
		return nil

	default:
		return fmt.Errorf("element: unknown op kind %d", op.Kind)
	}
}

func (m *Memory) childList(parent Handle) (*[]Handle, error) {
	if parent == Root {
		return &m.root, nil
	}
	p, ok := m.nodes[parent]
	if !ok {
		return nil, ErrStaleHandle
	}
	return &p.children, nil
}

func (m *Memory) free(h Handle) {
	n, ok := m.nodes[h]
	if !ok {
		return
	}
	for _, c := range n.children {
		m.free(c)
	}
	delete(m.nodes, h)
}

func insertAt(list []Handle, i int, h Handle) []Handle {
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = h
	return list
}

func removeHandle(list []Handle, h Handle) []Handle {
	for i, c := range list {
		if c == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Emit produces the message an element with handle h would send for payload.
func (m *Memory) Emit(h Handle, payload any) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[h]
	if !ok {
		return Message{}, ErrStaleHandle
	}
	return Message{Path: n.path.Clone(), Payload: payload}, nil
}

// Live returns the number of elements currently allocated.
func (m *Memory) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Applied returns the total number of ops applied successfully.
func (m *Memory) Applied() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applied
}

// Children returns the children of parent in order. Use Root for top level.
func (m *Memory) Children(parent Handle) []Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list, err := m.childList(parent)
	if err != nil {
		return nil
	}
	out := make([]Handle, len(*list))
	copy(out, *list)
	return out
}

// Tag returns the tag of h, or "" if h does not exist.
func (m *Memory) Tag(h Handle) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.nodes[h]; ok {
		return n.tag
	}
	return ""
}

// Text returns the text content of h.
func (m *Memory) Text(h Handle) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.nodes[h]; ok {
		return n.text
	}
	return ""
}

// Attr returns an attribute of h.
func (m *Memory) Attr(h Handle, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.nodes[h]; ok {
		v, ok := n.attrs[key]
		return v, ok
	}
	return "", false
}

// Find returns a live element created under path p.
func (m *Memory) Find(p viewid.Path) (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for h, n := range m.nodes {
		if n.path.Equal(p) {
			return h, true
		}
	}
	return 0, false
}

// Dump renders the attached tree as indented text with sorted attributes.
// Handles are omitted so dumps of equal trees compare equal.
func (m *Memory) Dump() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	for _, h := range m.root {
		m.dump(&b, h, 0)
	}
	return b.String()
}

func (m *Memory) dump(b *strings.Builder, h Handle, depth int) {
	n := m.nodes[h]
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.tag)
	if len(n.attrs) > 0 {
		keys := make([]string, 0, len(n.attrs))
		for k := range n.attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, " %s=%q", k, n.attrs[k])
		}
	}
	if n.text != "" {
		fmt.Fprintf(b, " %q", n.text)
	}
	b.WriteByte('\n')
	for _, c := range n.children {
		m.dump(b, c, depth+1)
	}
}
