// Package views provides a small vocabulary of view kinds: elements with
// attributes and children, text, and combinators for memoization, action
// mapping, fallbacks and subscriptions.
package views

import (
	"sort"
	"strconv"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/view"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

// TextTag is the tag of elements created by Text.
const TextTag = "#text"

// DebugIDAttr carries the element handle when the root was created with
// view.WithDebugIDs. A re-created element gets a new value.
const DebugIDAttr = "data-debugid"

// Element is one element with attributes and a sequence of children.
// Changing Tag rematerializes the element.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children view.Seq

	// On turns a message emitted by this element into an application action.
	// A nil return is handled without an action.
	On func(payload any) any
}

// El returns an Element with positional children.
func El(tag string, attrs map[string]string, children ...view.View) Element {
	return Element{Tag: tag, Attrs: attrs, Children: view.Items(children...)}
}

// ViewKind implements view.Kinded.
func (e Element) ViewKind() string {
	return "element:" + e.Tag
}

// Build implements view.View.
func (e Element) Build(cx *view.Cx) (any, element.Handle, error) {
	if e.Tag == "" {
		return nil, 0, cx.Misconfigured(e, "empty tag")
	}
	h := cx.CreateElement(e.Tag)
	s := cx.Elements()
	for _, k := range sortedKeys(e.Attrs) {
		s.SetAttr(h, k, e.Attrs[k])
	}
	if cx.DebugIDs() {
		s.SetAttr(h, DebugIDAttr, strconv.FormatUint(uint64(h), 10))
	}
	if len(e.Children) > 0 {
		if _, err := cx.ReconcileSeq(h, e.Children); err != nil {
			return nil, 0, err
		}
	}
	return nil, h, nil
}

// Rebuild implements view.View. Children are reconciled before attributes
// are touched so a rejected sequence leaves the element as it was.
func (e Element) Rebuild(cx *view.Cx, prev view.View, state any, el element.Handle) (any, view.Change, error) {
	p := prev.(Element)

	change, err := cx.ReconcileSeq(el, e.Children)
	if err != nil {
		return state, 0, err
	}

	s := cx.Elements()
	for _, k := range sortedKeys(p.Attrs) {
		if _, ok := e.Attrs[k]; !ok {
			s.RemoveAttr(el, k)
			change |= view.ChangeAttrs
		}
	}
	for _, k := range sortedKeys(e.Attrs) {
		if old, ok := p.Attrs[k]; !ok || old != e.Attrs[k] {
			s.SetAttr(el, k, e.Attrs[k])
			change |= view.ChangeAttrs
		}
	}
	return state, change, nil
}

// Teardown implements view.View.
func (e Element) Teardown(cx *view.Cx, state any, el element.Handle) {}

// Message implements view.View.
func (e Element) Message(cx *view.Cx, rest viewid.Path, state any, payload any) (view.Result, error) {
	if len(rest) > 0 {
		return cx.MessageChild(rest, payload)
	}
	if e.On == nil {
		return view.Nop(), nil
	}
	if a := e.On(payload); a != nil {
		return view.Action(a), nil
	}
	return view.Nop(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text is a text node.
type Text string

// Build implements view.View.
func (t Text) Build(cx *view.Cx) (any, element.Handle, error) {
	h := cx.CreateElement(TextTag)
	cx.Elements().SetText(h, string(t))
	return nil, h, nil
}

// Rebuild implements view.View.
func (t Text) Rebuild(cx *view.Cx, prev view.View, state any, el element.Handle) (any, view.Change, error) {
	if prev.(Text) == t {
		return state, 0, nil
	}
	cx.Elements().SetText(el, string(t))
	return state, view.ChangeText, nil
}

// Teardown implements view.View.
func (t Text) Teardown(cx *view.Cx, state any, el element.Handle) {}

// Message implements view.View.
func (t Text) Message(cx *view.Cx, rest viewid.Path, state any, payload any) (view.Result, error) {
	if len(rest) > 0 {
		return cx.MessageChild(rest, payload)
	}
	return view.Nop(), nil
}
