// Package element defines the boundary between the view core and a retained
// element tree.
//
// The core never touches elements directly. Each reconciliation pass records
// a Script of Ops against element Handles, and a Tree applies the script.
// Memory is an in-memory Tree used by tests, the demo app and replay.
package element

import (
	"fmt"

	"github.com/vango-dev/viewcore/pkg/viewid"
)

// Handle addresses one element in a Tree.
type Handle uint64

// Root is the implicit container that the root element is inserted into.
const Root Handle = 0

// OpKind is the type of a mutation.
type OpKind uint8

const (
	OpCreate     OpKind = 0x01 // Create a detached element
	OpSetAttr    OpKind = 0x02 // Set or update an attribute
	OpRemoveAttr OpKind = 0x03 // Remove an attribute
	OpSetText    OpKind = 0x04 // Replace text content
	OpInsert     OpKind = 0x05 // Insert a detached element under Parent at Index
	OpMove       OpKind = 0x06 // Move an attached child of Parent to Index
	OpDestroy    OpKind = 0x07 // Detach and free an element and its subtree
)

// String returns the string representation of the OpKind.
func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "Create"
	case OpSetAttr:
		return "SetAttr"
	case OpRemoveAttr:
		return "RemoveAttr"
	case OpSetText:
		return "SetText"
	case OpInsert:
		return "Insert"
	case OpMove:
		return "Move"
	case OpDestroy:
		return "Destroy"
	default:
		return "Unknown"
	}
}

// Op is a single element mutation.
type Op struct {
	Kind   OpKind
	Handle Handle      // Target element
	Parent Handle      // For Insert/Move
	Index  int         // For Insert/Move: position after the op
	Tag    string      // For Create
	Path   viewid.Path // For Create: path events from this element are tagged with
	Key    string      // Attribute name for SetAttr/RemoveAttr
	Value  string      // Attribute value or text
}

// String renders the op for logs and test failures.
func (o Op) String() string {
	switch o.Kind {
	case OpCreate:
		return fmt.Sprintf("Create(%d, %q, %s)", o.Handle, o.Tag, o.Path)
	case OpSetAttr:
		return fmt.Sprintf("SetAttr(%d, %s=%q)", o.Handle, o.Key, o.Value)
	case OpRemoveAttr:
		return fmt.Sprintf("RemoveAttr(%d, %s)", o.Handle, o.Key)
	case OpSetText:
		return fmt.Sprintf("SetText(%d, %q)", o.Handle, o.Value)
	case OpInsert:
		return fmt.Sprintf("Insert(%d -> %d @%d)", o.Handle, o.Parent, o.Index)
	case OpMove:
		return fmt.Sprintf("Move(%d in %d @%d)", o.Handle, o.Parent, o.Index)
	case OpDestroy:
		return fmt.Sprintf("Destroy(%d)", o.Handle)
	default:
		return fmt.Sprintf("Op(%d)", o.Kind)
	}
}

// Count returns how many ops of each kind a script contains.
func Count(ops []Op) map[OpKind]int {
	out := make(map[OpKind]int)
	for _, op := range ops {
		out[op.Kind]++
	}
	return out
}

// Tree applies mutation scripts.
//
// Apply is called once per reconciliation pass with the ops in the order the
// core produced them. Implementations may be local (Memory) or remote.
type Tree interface {
	Apply(ops []Op) error
}

// Message is an event emitted by an element, tagged with the path of the
// view node that created it.
type Message struct {
	Path    viewid.Path
	Payload any
}
