package view

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

// PlaceholderTag is the tag of the element that stands in for a node whose
// build or rebuild failed. The node is materialized again on the next pass.
const PlaceholderTag = "#placeholder"

// Stats counts what one pass did.
type Stats struct {
	Built     int // nodes materialized
	Rebuilt   int // nodes updated in place
	Unchanged int // rebuilds that reported no change
	Replaced  int // kind mismatches and retries of failed nodes
	TornDown  int // nodes torn down
	Failed    int // nodes left as placeholders or rejected
	Inserts   int // element inserts emitted by sequences
	Moves     int // element moves emitted by sequences
}

// Cx is the path context threaded through Build, Rebuild, Teardown and
// Message. It tracks the node being processed and gives views access to the
// element script and to their children. A Cx is only valid during the call
// it was passed to.
type Cx struct {
	store  *Store
	script *element.Script
	logger *slog.Logger
	debug  bool

	cur      int32
	path     viewid.Path
	detached bool

	// routing is the full path of the message being routed.
	routing viewid.Path

	// quiet is the slot whose failure the caller handles; it is not
	// recorded in the pass.
	quiet int32

	failures []error
	stats    Stats
}

func (cx *Cx) enter(idx int32) (int32, int) {
	prev, depth := cx.cur, len(cx.path)
	cx.cur = idx
	cx.path = append(cx.path, cx.store.slots[idx].id)
	return prev, depth
}

func (cx *Cx) leave(prev int32, depth int) {
	cx.cur = prev
	cx.path = cx.path[:depth]
}

// Path returns the path of the current node.
func (cx *Cx) Path() viewid.Path {
	return cx.path.Clone()
}

// ID returns the id of the current node within its parent.
func (cx *Cx) ID() viewid.ID {
	return cx.store.slots[cx.cur].id
}

// Logger returns the logger of the Root running the pass.
func (cx *Cx) Logger() *slog.Logger {
	return cx.logger
}

// DebugIDs reports whether elements should carry a data-debugid attribute.
func (cx *Cx) DebugIDs() bool {
	return cx.debug
}

// Detached reports, during Teardown, whether an ancestor already destroyed
// the element. Element work must be skipped; other cleanup must still run.
func (cx *Cx) Detached() bool {
	return cx.detached
}

// Elements returns the script of the current pass. Views use it to mutate
// the element they own.
func (cx *Cx) Elements() *element.Script {
	return cx.script
}

// CreateElement creates the element owned by the current node. A node owns
// at most one element.
func (cx *Cx) CreateElement(tag string) element.Handle {
	sl := &cx.store.slots[cx.cur]
	if sl.owned != 0 {
		panic(fmt.Sprintf("view: node %s created a second element", cx.path))
	}
	h := cx.script.Create(tag, cx.path)
	sl.owned = h
	sl.el = h
	return h
}

// SetElement records that the current node now presents h, a child's
// element. Pass-through views call it from Rebuild when a child reports
// ChangeElement.
func (cx *Cx) SetElement(h element.Handle) {
	cx.store.slots[cx.cur].el = h
}

// OnCleanup registers fn to run when the current node is torn down, after
// the view's Teardown and before its children. Cleanups run even when an
// ancestor already destroyed the element.
func (cx *Cx) OnCleanup(fn func()) {
	sl := &cx.store.slots[cx.cur]
	sl.cleanups = append(sl.cleanups, fn)
}

// Misconfigured returns a *ConfigurationError for v at the current node.
func (cx *Cx) Misconfigured(v View, reason string) error {
	return &ConfigurationError{Path: cx.Path(), Kind: KindOf(v), Reason: reason}
}

// BuildChild materializes v as the fixed child id of the current node and
// returns its element. On failure nothing is kept and the error is returned,
// so the caller can substitute another view or fail itself.
func (cx *Cx) BuildChild(id viewid.ID, v View) (element.Handle, error) {
	parent := cx.cur
	if c := cx.store.childIndex(parent, id); c != noSlot {
		return 0, fmt.Errorf("view: child %s already exists at %s", id, cx.path)
	}
	c := cx.store.alloc(parent, id)
	if err := cx.materialize(c, v); err != nil {
		cx.store.release(c)
		return 0, err
	}
	cx.store.slots[parent].children = append(cx.store.slots[parent].children, c)
	return cx.store.slots[c].el, nil
}

// RebuildChild updates the fixed child id from v, building it if missing.
// The child is always left consistent: a failure is contained at the child
// and reported by ChildErr.
func (cx *Cx) RebuildChild(id viewid.ID, v View) (element.Handle, Change) {
	parent := cx.cur
	c := cx.store.childIndex(parent, id)
	if c == noSlot {
		c = cx.store.alloc(parent, id)
		if err := cx.materialize(c, v); err != nil {
			cx.placeholder(c, v, "build", err)
		}
		cx.store.slots[parent].children = append(cx.store.slots[parent].children, c)
		return cx.store.slots[c].el, ChangeElement
	}
	return cx.rebuildSlot(c, v)
}

// TryRebuildChild is RebuildChild for callers that handle the child's
// failure themselves. The failure is returned instead of being recorded in
// the pass, and the child stays a placeholder until the caller tears it
// down or rebuilds it. A missing child is built as with BuildChild.
func (cx *Cx) TryRebuildChild(id viewid.ID, v View) (element.Handle, Change, error) {
	c := cx.store.childIndex(cx.cur, id)
	if c == noSlot {
		h, err := cx.BuildChild(id, v)
		if err != nil {
			return 0, 0, err
		}
		return h, ChangeElement, nil
	}
	saved := cx.quiet
	cx.quiet = c
	h, change := cx.rebuildSlot(c, v)
	cx.quiet = saved
	return h, change, cx.store.slots[c].err
}

// ChildErr returns the error that left child id as a placeholder, if any.
func (cx *Cx) ChildErr(id viewid.ID) error {
	c := cx.store.childIndex(cx.cur, id)
	if c == noSlot {
		return nil
	}
	return cx.store.slots[c].err
}

// TeardownChild tears down the fixed child id. It reports whether the child
// existed.
func (cx *Cx) TeardownChild(id viewid.ID) bool {
	parent := cx.cur
	c := cx.store.childIndex(parent, id)
	if c == noSlot {
		return false
	}
	cx.teardownSlot(c, cx.detached, true)
	children := cx.store.slots[parent].children
	for i, x := range children {
		if x == c {
			cx.store.slots[parent].children = append(children[:i], children[i+1:]...)
			break
		}
	}
	return true
}

// MessageChild forwards payload to the child named by rest[0].
func (cx *Cx) MessageChild(rest viewid.Path, payload any) (Result, error) {
	if len(rest) == 0 {
		return Result{Kind: ResultStale}, &UnknownPathError{Path: cx.routing, Depth: len(cx.path)}
	}
	c := cx.store.childIndex(cx.cur, rest[0])
	if c == noSlot || cx.store.slots[c].failed {
		return Result{Kind: ResultStale}, &UnknownPathError{Path: cx.routing, Depth: len(cx.path)}
	}
	return cx.message(c, rest[1:], payload)
}

func (cx *Cx) message(idx int32, rest viewid.Path, payload any) (res Result, err error) {
	sl := &cx.store.slots[idx]
	v, state := sl.view, sl.state
	p, d := cx.enter(idx)
	defer cx.leave(p, d)
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, &PanicError{Path: cx.Path(), Op: "message", Value: r, Stack: debug.Stack()}
		}
	}()
	return v.Message(cx, rest, state, payload)
}

// materialize builds v into the empty slot idx. On failure it tears down
// whatever the view built before failing and leaves the slot empty.
func (cx *Cx) materialize(idx int32, v View) error {
	p, d := cx.enter(idx)
	state, el, err := cx.callBuild(v)
	cx.leave(p, d)

	if err == nil && el == 0 {
		err = &ConfigurationError{Path: cx.path.Append(cx.store.slots[idx].id), Kind: KindOf(v), Reason: "no element"}
	}
	if err != nil {
		cx.teardownSlot(idx, false, false)
		cx.store.reset(idx)
		return err
	}

	sl := &cx.store.slots[idx]
	sl.view = v
	sl.state = state
	sl.el = el
	cx.stats.Built++
	return nil
}

func (cx *Cx) callBuild(v View) (state any, el element.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			state, el, err = nil, 0, &PanicError{Path: cx.Path(), Op: "build", Value: r, Stack: debug.Stack()}
		}
	}()
	if v == nil {
		return nil, 0, &ConfigurationError{Path: cx.Path(), Kind: KindOf(v), Reason: "nil view"}
	}
	return v.Build(cx)
}

// placeholder fills the empty slot idx with a stand-in element so the store
// keeps an entry for the node, and records the failure unless idx is quiet.
func (cx *Cx) placeholder(idx int32, v View, op string, err error) {
	p, d := cx.enter(idx)
	h := cx.script.Create(PlaceholderTag, cx.path)
	path := cx.Path()
	cx.leave(p, d)

	sl := &cx.store.slots[idx]
	sl.view = v
	sl.state = nil
	sl.el = h
	sl.owned = h
	sl.failed = true
	sl.err = err
	if idx == cx.quiet {
		cx.logger.Debug("view node failed", "path", path.String(), "op", op, "error", err)
		return
	}
	cx.fail(path, op, err)
}

func (cx *Cx) fail(path viewid.Path, op string, err error) {
	cx.stats.Failed++
	cx.failures = append(cx.failures, &NodeError{Path: path, Op: op, Err: err})
	cx.logger.Warn("view node failed", "path", path.String(), "op", op, "error", err)
}

// rebuildSlot updates slot idx from next and returns the element it now
// presents. Failures are contained here.
func (cx *Cx) rebuildSlot(idx int32, next View) (element.Handle, Change) {
	sl := &cx.store.slots[idx]
	if sl.failed || !sameKind(sl.view, next) {
		return cx.replaceSlot(idx, next)
	}
	prev, state, before := sl.view, sl.state, sl.el

	p, d := cx.enter(idx)
	newState, change, err := cx.callRebuild(next, prev, state, before)
	path := cx.Path()
	cx.leave(p, d)

	sl = &cx.store.slots[idx]
	var dup *DuplicateKeyError
	switch {
	case err == nil:
		sl.view = next
		sl.state = newState
		cx.stats.Rebuilt++
		if sl.el != before {
			change |= ChangeElement
		}
		if change == 0 {
			cx.stats.Unchanged++
		}
		return sl.el, change

	case errors.Is(err, ErrKindMismatch):
		return cx.replaceSlot(idx, next)

	case errors.As(err, &dup):
		// The previous description still matches the store.
		cx.fail(path, "rebuild", err)
		return sl.el, change

	default:
		cx.teardownSlot(idx, false, false)
		cx.store.ReplaceSubtree(cx.store.ref(idx))
		cx.placeholder(idx, next, "rebuild", err)
		return cx.store.slots[idx].el, ChangeElement
	}
}

func (cx *Cx) callRebuild(next, prev View, state any, el element.Handle) (s any, c Change, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, c, err = state, 0, &PanicError{Path: cx.Path(), Op: "rebuild", Value: r, Stack: debug.Stack()}
		}
	}()
	return next.Rebuild(cx, prev, state, el)
}

// replaceSlot tears down slot idx and materializes next under the same id.
func (cx *Cx) replaceSlot(idx int32, next View) (element.Handle, Change) {
	cx.stats.Replaced++
	cx.teardownSlot(idx, false, false)
	cx.store.ReplaceSubtree(cx.store.ref(idx))
	if err := cx.materialize(idx, next); err != nil {
		cx.placeholder(idx, next, "build", err)
	}
	return cx.store.slots[idx].el, ChangeElement
}

// teardownSlot runs the view's Teardown, its cleanups, then its children.
// The topmost owned element of the torn-down subtree is destroyed; elements
// below it go with it. With release the slot is freed, otherwise it is left
// empty for reuse by the caller.
func (cx *Cx) teardownSlot(idx int32, detached bool, release bool) {
	sl := &cx.store.slots[idx]
	v, state, el, failed := sl.view, sl.state, sl.el, sl.failed

	p, d := cx.enter(idx)
	saved := cx.detached
	cx.detached = detached

	if v != nil && !failed {
		cx.callTeardown(v, state, el)
	}

	sl = &cx.store.slots[idx]
	cleanups := sl.cleanups
	sl.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cx.runCleanup(cleanups[i])
	}

	sl = &cx.store.slots[idx]
	owned := sl.owned
	children := append([]int32(nil), sl.children...)
	for _, c := range children {
		cx.teardownSlot(c, detached || owned != 0, true)
	}
	cx.store.slots[idx].children = cx.store.slots[idx].children[:0]

	cx.detached = saved
	cx.leave(p, d)

	if owned != 0 && !detached {
		cx.script.Destroy(owned)
	}
	cx.stats.TornDown++
	if release {
		cx.store.release(idx)
	}
}

func (cx *Cx) callTeardown(v View, state any, el element.Handle) {
	defer func() {
		if r := recover(); r != nil {
			cx.logger.Error("view teardown panic", "path", cx.path.String(), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	v.Teardown(cx, state, el)
}

func (cx *Cx) runCleanup(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			cx.logger.Error("view cleanup panic", "path", cx.path.String(), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
