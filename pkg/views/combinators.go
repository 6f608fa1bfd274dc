package views

import (
	"errors"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/view"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

var (
	childID = viewid.Position(0)
	elseID  = viewid.Position(1)
)

// passThrough is embedded by views that wrap a single fixed child and
// present its element as their own.
type passThrough struct{}

// Teardown implements view.View.
func (passThrough) Teardown(cx *view.Cx, state any, el element.Handle) {}

func rebuildChild(cx *view.Cx, id viewid.ID, v view.View) view.Change {
	el, change := cx.RebuildChild(id, v)
	if change.Has(view.ChangeElement) {
		cx.SetElement(el)
	}
	return change
}

// Memo renders its child from Data and skips rebuilding it while Data is
// unchanged.
type Memo[T comparable] struct {
	passThrough
	Data   T
	Render func(T) view.View
}

// Build implements view.View.
func (m Memo[T]) Build(cx *view.Cx) (any, element.Handle, error) {
	if m.Render == nil {
		return nil, 0, cx.Misconfigured(m, "nil render")
	}
	el, err := cx.BuildChild(childID, m.Render(m.Data))
	return nil, el, err
}

// Rebuild implements view.View.
func (m Memo[T]) Rebuild(cx *view.Cx, prev view.View, state any, el element.Handle) (any, view.Change, error) {
	if prev.(Memo[T]).Data == m.Data && cx.ChildErr(childID) == nil {
		return state, 0, nil
	}
	if m.Render == nil {
		return state, 0, cx.Misconfigured(m, "nil render")
	}
	return state, rebuildChild(cx, childID, m.Render(m.Data)), nil
}

// Message implements view.View.
func (m Memo[T]) Message(cx *view.Cx, rest viewid.Path, state any, payload any) (view.Result, error) {
	return cx.MessageChild(rest, payload)
}

// Map converts the actions produced below Child with Fn. A nil return from
// Fn swallows the action.
type Map struct {
	passThrough
	Child view.View
	Fn    func(action any) any
}

// Build implements view.View.
func (m Map) Build(cx *view.Cx) (any, element.Handle, error) {
	if m.Fn == nil {
		return nil, 0, cx.Misconfigured(m, "nil map function")
	}
	el, err := cx.BuildChild(childID, m.Child)
	return nil, el, err
}

// Rebuild implements view.View.
func (m Map) Rebuild(cx *view.Cx, prev view.View, state any, el element.Handle) (any, view.Change, error) {
	if m.Fn == nil {
		return state, 0, cx.Misconfigured(m, "nil map function")
	}
	return state, rebuildChild(cx, childID, m.Child), nil
}

// Message implements view.View.
func (m Map) Message(cx *view.Cx, rest viewid.Path, state any, payload any) (view.Result, error) {
	res, err := cx.MessageChild(rest, payload)
	if err != nil || res.Kind != view.ResultAction {
		return res, err
	}
	if a := m.Fn(res.Action); a != nil {
		return view.Action(a), nil
	}
	return view.Nop(), nil
}

// Fallback presents Child, or Else when Child is misconfigured. Once it has
// fallen back it keeps presenting Else until it is torn down.
type Fallback struct {
	passThrough
	Child view.View
	Else  view.View
}

type fallbackState struct {
	usingElse bool
}

func isConfigError(err error) bool {
	var ce *view.ConfigurationError
	return errors.As(err, &ce)
}

// Build implements view.View.
func (f Fallback) Build(cx *view.Cx) (any, element.Handle, error) {
	el, err := cx.BuildChild(childID, f.Child)
	if err == nil {
		return fallbackState{}, el, nil
	}
	if !isConfigError(err) || f.Else == nil {
		return nil, 0, err
	}
	cx.Logger().Debug("falling back", "path", cx.Path().String(), "error", err)
	el, err = cx.BuildChild(elseID, f.Else)
	if err != nil {
		return nil, 0, err
	}
	return fallbackState{usingElse: true}, el, nil
}

// Rebuild implements view.View. A Child that becomes misconfigured is
// replaced by Else without counting as a failed node; any other failure
// fails the Fallback itself, as it does in Build.
func (f Fallback) Rebuild(cx *view.Cx, prev view.View, state any, el element.Handle) (any, view.Change, error) {
	st, _ := state.(fallbackState)
	if st.usingElse {
		if f.Else == nil {
			return state, 0, cx.Misconfigured(f, "nil fallback")
		}
		return st, rebuildChild(cx, elseID, f.Else), nil
	}
	if f.Else == nil {
		return st, rebuildChild(cx, childID, f.Child), nil
	}

	h, change, err := cx.TryRebuildChild(childID, f.Child)
	if err == nil {
		if change.Has(view.ChangeElement) {
			cx.SetElement(h)
		}
		return st, change, nil
	}
	cx.TeardownChild(childID)
	if !isConfigError(err) {
		return st, change, err
	}

	cx.Logger().Debug("falling back", "path", cx.Path().String(), "error", err)
	h, err = cx.BuildChild(elseID, f.Else)
	if err != nil {
		return st, change, err
	}
	cx.SetElement(h)
	return fallbackState{usingElse: true}, change | view.ChangeElement, nil
}

// Message implements view.View.
func (f Fallback) Message(cx *view.Cx, rest viewid.Path, state any, payload any) (view.Result, error) {
	return cx.MessageChild(rest, payload)
}

// Subscribe starts a subscription when it is built and stops it when it is
// torn down, including when an ancestor removed the element. The
// subscription is not restarted by rebuilds.
type Subscribe struct {
	passThrough
	Start func() (stop func())
	Child view.View
}

// Build implements view.View.
func (s Subscribe) Build(cx *view.Cx) (any, element.Handle, error) {
	if s.Start == nil {
		return nil, 0, cx.Misconfigured(s, "nil start")
	}
	if stop := s.Start(); stop != nil {
		cx.OnCleanup(stop)
	}
	el, err := cx.BuildChild(childID, s.Child)
	return nil, el, err
}

// Rebuild implements view.View.
func (s Subscribe) Rebuild(cx *view.Cx, prev view.View, state any, el element.Handle) (any, view.Change, error) {
	return state, rebuildChild(cx, childID, s.Child), nil
}

// Message implements view.View.
func (s Subscribe) Message(cx *view.Cx, rest viewid.Path, state any, payload any) (view.Result, error) {
	return cx.MessageChild(rest, payload)
}
