package view

import (
	"reflect"
	"strings"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

// View describes what should exist at one position of the tree for one frame.
//
// Views are produced fresh every frame and never mutated after that; the
// reconciler consumes each one exactly once, by Build on first appearance or
// by Rebuild against the previous description. Only the associated state and
// the element outlive the description.
//
// Every View presents exactly one element to its parent, either one it
// created with Cx.CreateElement or one of its children's.
type View interface {
	// Build materializes the node: it creates its element and children and
	// returns the associated state. A malformed description returns a
	// *ConfigurationError.
	Build(cx *Cx) (state any, el element.Handle, err error)

	// Rebuild updates the node in place from prev. When nothing observable
	// changed it must emit no ops and return a zero Change. It must not create
	// a new element; return ErrKindMismatch to force rematerialization.
	Rebuild(cx *Cx, prev View, state any, el element.Handle) (any, Change, error)

	// Teardown releases what Build acquired outside the store. Cx.Detached
	// reports whether an ancestor already destroyed the element. Children
	// and cleanups registered with Cx.OnCleanup are handled by the reconciler.
	Teardown(cx *Cx, state any, el element.Handle)

	// Message interprets payload when rest is empty, or forwards it to the
	// child named by rest with Cx.MessageChild.
	Message(cx *Cx, rest viewid.Path, state any, payload any) (Result, error)
}

// Kinded refines kind identity beyond the dynamic type. Two views of the same
// type with different ViewKind values are rematerialized instead of rebuilt.
type Kinded interface {
	ViewKind() string
}

// KindOf returns the kind name used for mismatch detection and logging.
func KindOf(v View) string {
	if v == nil {
		return "<nil>"
	}
	name := reflect.TypeOf(v).String()
	if k, ok := v.(Kinded); ok {
		return name + "(" + k.ViewKind() + ")"
	}
	return name
}

func sameKind(a, b View) bool {
	if a == nil || b == nil {
		return false
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	ka, aok := a.(Kinded)
	kb, bok := b.(Kinded)
	if aok && bok {
		return ka.ViewKind() == kb.ViewKind()
	}
	return true
}

// Change reports which aspects of a node changed during Rebuild.
type Change uint8

const (
	ChangeAttrs    Change = 1 << iota // attributes written
	ChangeText                        // text content written
	ChangeChildren                    // children inserted, removed or moved
	ChangeElement                     // the node now presents a different element
)

// Has reports whether all bits of flag are set.
func (c Change) Has(flag Change) bool {
	return c&flag == flag && flag != 0
}

// String returns the set flags joined by "|", or "none".
func (c Change) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c&ChangeAttrs != 0 {
		parts = append(parts, "attrs")
	}
	if c&ChangeText != 0 {
		parts = append(parts, "text")
	}
	if c&ChangeChildren != 0 {
		parts = append(parts, "children")
	}
	if c&ChangeElement != 0 {
		parts = append(parts, "element")
	}
	return strings.Join(parts, "|")
}

// ResultKind classifies the outcome of routing a message.
type ResultKind uint8

const (
	ResultNop     ResultKind = iota // handled, nothing for the application
	ResultAction                    // Action carries an application action
	ResultRebuild                   // no action, but the view should be rebuilt
	ResultStale                     // target no longer exists; dropped
)

// String returns the string representation of the ResultKind.
func (k ResultKind) String() string {
	switch k {
	case ResultNop:
		return "nop"
	case ResultAction:
		return "action"
	case ResultRebuild:
		return "rebuild"
	case ResultStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Result is the outcome of routing one message.
type Result struct {
	Kind   ResultKind
	Action any
}

// Nop returns a Result with nothing to apply.
func Nop() Result { return Result{Kind: ResultNop} }

// Action returns a Result carrying an application action.
func Action(a any) Result { return Result{Kind: ResultAction, Action: a} }

// RequestRebuild returns a Result asking the driver to rebuild.
func RequestRebuild() Result { return Result{Kind: ResultRebuild} }

// Entry is one child of a dynamically-sized sequence.
type Entry struct {
	Key   string
	Keyed bool
	View  View
}

// Keyed returns an entry identified by key regardless of position.
func Keyed(key string, v View) Entry {
	return Entry{Key: key, Keyed: true, View: v}
}

// Item returns an entry identified by its position.
func Item(v View) Entry {
	return Entry{View: v}
}

// Seq is an ordered list of children.
type Seq []Entry

// Items wraps views as positional entries.
func Items(views ...View) Seq {
	out := make(Seq, len(views))
	for i, v := range views {
		out[i] = Entry{View: v}
	}
	return out
}

// id returns the identity of the entry at index i.
func (e Entry) id(i int) viewid.ID {
	if e.Keyed {
		return viewid.Key(e.Key)
	}
	return viewid.Position(i)
}
