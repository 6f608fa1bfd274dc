package view

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/petermattis/goid"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

// Root owns one associated-state tree and runs reconciliation passes and
// message routing against it. Passes are synchronous and never overlap:
// a call made while another is running fails instead of waiting.
type Root struct {
	store  *Store
	alloc  *element.Allocator
	script *element.Script
	logger *slog.Logger
	debug  bool
	cx     Cx

	mu    sync.Mutex
	busy  bool
	owner int64

	last Stats
}

// Option configures a Root.
type Option func(*Root)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Root) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAllocator shares an element handle allocator between roots that apply
// to the same element tree.
func WithAllocator(alloc *element.Allocator) Option {
	return func(r *Root) {
		if alloc != nil {
			r.alloc = alloc
		}
	}
}

// WithDebugIDs makes Cx.DebugIDs report true, so element views stamp each
// element they create with a data-debugid attribute.
func WithDebugIDs() Option {
	return func(r *Root) {
		r.debug = true
	}
}

// NewRoot creates an empty Root.
func NewRoot(opts ...Option) *Root {
	r := &Root{
		store:  NewStore(),
		alloc:  &element.Allocator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.script = element.NewScript(r.alloc)
	r.cx = Cx{store: r.store, script: r.script, logger: r.logger, debug: r.debug, cur: noSlot, quiet: noSlot}
	return r
}

// Store returns the associated-state tree. It must not be used while a pass
// is running.
func (r *Root) Store() *Store {
	return r.store
}

// Stats returns the counters of the last completed pass.
func (r *Root) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Root) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := goid.Get()
	if r.busy {
		if id == r.owner {
			return ErrReentrant
		}
		return ErrConcurrentPass
	}
	r.busy = true
	r.owner = id
	return nil
}

func (r *Root) end() {
	r.mu.Lock()
	r.busy = false
	r.owner = 0
	r.last = r.cx.stats
	r.mu.Unlock()
}

func (r *Root) resetCx() {
	r.cx.cur = noSlot
	r.cx.quiet = noSlot
	r.cx.path = r.cx.path[:0]
	r.cx.detached = false
	r.cx.routing = nil
	r.cx.failures = nil
	r.cx.stats = Stats{}
}

// Reconcile materializes v on the first call and rebuilds against the
// previous tree afterwards. It returns the mutation script of the pass.
//
// The pass always completes. Per-node failures are contained (the node is
// left as a placeholder and retried on the next pass, or a rejected sequence
// keeps its previous children) and returned joined for logging.
func (r *Root) Reconcile(v View) ([]element.Op, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.end()
	r.resetCx()
	cx := &r.cx

	if r.store.root == noSlot {
		idx := r.store.alloc(noSlot, viewid.RootID)
		r.store.root = idx
		if err := cx.materialize(idx, v); err != nil {
			cx.placeholder(idx, v, "build", err)
		}
		r.script.Insert(element.Root, 0, r.store.slots[idx].el)
	} else {
		idx := r.store.root
		before := r.store.slots[idx].el
		if el, _ := cx.rebuildSlot(idx, v); el != before {
			r.script.Insert(element.Root, 0, el)
		}
	}

	return r.script.Take(), errors.Join(cx.failures...)
}

// Route delivers a message to the node that created the element it came
// from and returns what that node made of it.
//
// A path with no node in the current tree yields a ResultStale result and an
// error matching ErrUnknownPath. This is expected for messages from elements
// removed by a rebuild; callers should drop them.
func (r *Root) Route(msg element.Message) (Result, error) {
	if err := r.begin(); err != nil {
		return Result{}, err
	}
	defer r.end()
	r.resetCx()
	cx := &r.cx
	cx.routing = msg.Path

	idx := r.store.root
	if idx == noSlot || len(msg.Path) == 0 || msg.Path[0] != viewid.RootID || r.store.slots[idx].failed {
		return r.stale(&UnknownPathError{Path: msg.Path, Depth: 0})
	}

	res, err := cx.message(idx, msg.Path[1:], msg.Payload)
	if errors.Is(err, ErrUnknownPath) {
		return r.stale(err)
	}
	return res, err
}

func (r *Root) stale(err error) (Result, error) {
	r.logger.Debug("dropping message for unknown path", "error", err)
	return Result{Kind: ResultStale}, err
}

// Teardown tears the whole tree down and returns the script that destroys
// its elements. The Root can be reused afterwards.
func (r *Root) Teardown() ([]element.Op, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.end()
	r.resetCx()

	if r.store.root != noSlot {
		r.cx.teardownSlot(r.store.root, false, true)
	}
	return r.script.Take(), nil
}
