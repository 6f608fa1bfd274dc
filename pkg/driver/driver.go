// Package driver runs the application cycle around a view.Root: it drains
// queued element messages, routes them, feeds the resulting actions to the
// application, rebuilds the view and hands the mutation script to an
// element tree.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/view"
)

// DefaultQueueSize is the message queue capacity used when none is set.
const DefaultQueueSize = 256

var (
	// ErrQueueFull is returned by Send and Dispatch when the queue is full.
	// The message is dropped.
	ErrQueueFull = errors.New("driver: message queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("driver: closed")
)

// App is the application driven by a Driver. Both methods run on the
// driver's goroutine and must not call back into the Driver synchronously.
type App[S any] interface {
	// View projects state into a fresh view tree.
	View(state S) view.View

	// Update applies an action produced by routing a message.
	Update(state S, action any) S
}

// Funcs adapts two functions to App.
type Funcs[S any] struct {
	ViewFunc   func(S) view.View
	UpdateFunc func(S, any) S
}

// View implements App.
func (f Funcs[S]) View(state S) view.View {
	return f.ViewFunc(state)
}

// Update implements App. A nil UpdateFunc leaves state unchanged.
func (f Funcs[S]) Update(state S, action any) S {
	if f.UpdateFunc == nil {
		return state
	}
	return f.UpdateFunc(state, action)
}

// Entry is one item a cycle took from the queue: an element message, or an
// action queued with Dispatch.
type Entry struct {
	Cycle      uint64
	Message    element.Message
	Action     any
	Dispatched bool
}

// Recorder receives every entry a cycle takes from the queue, in order,
// before it is routed or applied. Entries of one cycle share Entry.Cycle.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Cycle describes one Step.
type Cycle struct {
	Seq      uint64
	Messages int // messages routed
	Actions  int // actions applied, including dispatched ones
	Stale    int // messages dropped for unknown paths
	Ops      int // element ops applied
	Rebuilt  bool
	Stats    view.Stats
}

type options struct {
	logger    *slog.Logger
	queueSize int
	metrics   *Metrics
	tracer    trace.Tracer
	recorder  Recorder
	viewOpts  []view.Option
}

// Option configures a Driver.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithQueueSize sets the message queue capacity. Default: DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// WithMetrics records cycle metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for cycle spans. Default: the global
// provider's tracer named DefaultTracerName.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithJournal records every queued message and dispatched action into r.
func WithJournal(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithViewOptions passes opts to the view root, after the driver's logger.
func WithViewOptions(opts ...view.Option) Option {
	return func(o *options) {
		o.viewOpts = append(o.viewOpts, opts...)
	}
}

type queued struct {
	msg        element.Message
	action     any
	dispatched bool
}

// Driver owns the application state and the view tree of one element tree.
//
// Send and Dispatch may be called from any goroutine. Step, Handle and Run
// serialize on the driver; messages are routed one at a time in the order
// they were queued.
type Driver[S any] struct {
	app      App[S]
	tree     element.Tree
	root     *view.Root
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	recorder Recorder

	queue     chan queued
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state S
	built bool
	dirty bool
	seq   uint64
}

// New creates a Driver for app with the given initial state. Nothing is
// built until the first Step.
func New[S any](app App[S], tree element.Tree, initial S, opts ...Option) *Driver[S] {
	o := options{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}
	if o.tracer == nil {
		o.tracer = defaultTracer()
	}

	return &Driver[S]{
		app:      app,
		tree:     tree,
		root:     view.NewRoot(append([]view.Option{view.WithLogger(o.logger)}, o.viewOpts...)...),
		logger:   o.logger,
		metrics:  o.metrics,
		tracer:   o.tracer,
		recorder: o.recorder,
		queue:    make(chan queued, o.queueSize),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		state:    initial,
	}
}

// Root returns the view root. It must not be used while a cycle runs.
func (d *Driver[S]) Root() *view.Root {
	return d.root
}

// State returns the current application state.
func (d *Driver[S]) State() S {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Send queues an element message for the next cycle without blocking.
func (d *Driver[S]) Send(msg element.Message) error {
	if err := d.enqueue(queued{msg: msg}); err != nil {
		if errors.Is(err, ErrQueueFull) {
			d.logger.Warn("message queue full, dropping message", "path", msg.Path.String())
		}
		return err
	}
	return nil
}

// Dispatch queues an application action for the next cycle without
// blocking. Use it to feed results of asynchronous work back into Update.
func (d *Driver[S]) Dispatch(action any) error {
	if err := d.enqueue(queued{action: action, dispatched: true}); err != nil {
		if errors.Is(err, ErrQueueFull) {
			d.logger.Warn("message queue full, dropping action")
		}
		return err
	}
	return nil
}

func (d *Driver[S]) enqueue(q queued) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.queue <- q:
	default:
		d.metrics.recordQueueFull()
		return ErrQueueFull
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Handle queues msg and runs a cycle synchronously. If the queue is full
// the messages already queued are handled first.
func (d *Driver[S]) Handle(ctx context.Context, msg element.Message) (Cycle, error) {
	if err := d.enqueue(queued{msg: msg}); errors.Is(err, ErrQueueFull) {
		if _, err := d.Step(ctx); err != nil {
			return Cycle{}, err
		}
		if err := d.enqueue(queued{msg: msg}); err != nil {
			return Cycle{}, err
		}
	} else if err != nil {
		return Cycle{}, err
	}
	return d.Step(ctx)
}

// Step runs one cycle: it routes the messages queued so far, applies the
// resulting actions, and if anything changed (or nothing was built yet)
// rebuilds the view and applies the script to the element tree.
func (d *Driver[S]) Step(ctx context.Context) (Cycle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cycle(ctx, d.drain())
}

// Replay runs one cycle over entries as a single batch, bypassing the
// queue. Every message is routed against the tree as it stood before the
// cycle, so a recorded cycle replays with the same outcome. Entry.Cycle is
// ignored.
func (d *Driver[S]) Replay(ctx context.Context, entries []Entry) (Cycle, error) {
	batch := make([]queued, len(entries))
	for i, e := range entries {
		batch[i] = queued{msg: e.Message, action: e.Action, dispatched: e.Dispatched}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cycle(ctx, batch)
}

// drain takes everything queued so far.
func (d *Driver[S]) drain() []queued {
	var batch []queued
	for n := len(d.queue); n > 0; n-- {
		select {
		case q := <-d.queue:
			batch = append(batch, q)
		default:
			return batch
		}
	}
	return batch
}

func (d *Driver[S]) cycle(ctx context.Context, batch []queued) (Cycle, error) {
	d.seq++
	c := Cycle{Seq: d.seq}
	start := time.Now()
	ctx, span := d.startCycle(ctx, c.Seq)
	err := d.step(ctx, &c, batch)
	endCycle(span, c, err)

	if c.Rebuilt {
		d.metrics.recordCycle(time.Since(start).Seconds(), c.Stats, d.root.Store().Len())
	}
	return c, err
}

func (d *Driver[S]) record(ctx context.Context, c *Cycle, q queued) {
	if d.recorder == nil {
		return
	}
	e := Entry{Cycle: c.Seq, Message: q.msg, Action: q.action, Dispatched: q.dispatched}
	if err := d.recorder.Record(ctx, e); err != nil {
		d.logger.Warn("journal record failed", "cycle", c.Seq, "dispatched", q.dispatched, "error", err)
	}
}

func (d *Driver[S]) step(ctx context.Context, c *Cycle, batch []queued) error {
	rebuild := !d.built || d.dirty

	for _, q := range batch {
		d.record(ctx, c, q)
		if q.dispatched {
			d.update(q.action)
			c.Actions++
			rebuild = true
			continue
		}

		c.Messages++
		res, err := d.root.Route(q.msg)
		d.metrics.recordMessage(res.Kind, err)
		switch {
		case res.Kind == view.ResultStale:
			c.Stale++
		case err != nil:
			d.logger.Error("message routing failed", "path", q.msg.Path.String(), "error", err)
		case res.Kind == view.ResultAction:
			d.update(res.Action)
			c.Actions++
			rebuild = true
		case res.Kind == view.ResultRebuild:
			rebuild = true
		}
	}

	if !rebuild {
		return nil
	}
	if err := ctx.Err(); err != nil {
		d.dirty = true
		return err
	}

	ops, err := d.root.Reconcile(d.app.View(d.state))
	if errors.Is(err, view.ErrReentrant) || errors.Is(err, view.ErrConcurrentPass) {
		return err
	}
	if err != nil {
		d.logger.Warn("reconcile contained failures", "cycle", c.Seq, "error", err)
	}
	d.built = true
	d.dirty = false
	c.Rebuilt = true
	c.Ops = len(ops)
	c.Stats = d.root.Stats()

	if len(ops) == 0 {
		return nil
	}
	if err := d.tree.Apply(ops); err != nil {
		d.metrics.recordApplyError()
		d.logger.Error("element tree rejected script", "cycle", c.Seq, "ops", len(ops), "error", err)
		return fmt.Errorf("driver: apply: %w", err)
	}
	d.metrics.recordOps(ops)
	return nil
}

// update runs App.Update with panic recovery. A panicking update leaves the
// state unchanged.
func (d *Driver[S]) update(action any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("update panic",
				"panic", r,
				"action", fmt.Sprintf("%T", action),
				"stack", string(debug.Stack()))
		}
	}()
	d.state = d.app.Update(d.state, action)
}

// Run builds the view and then runs a cycle whenever messages arrive, until
// ctx is done or Close is called. On return the view tree is torn down and
// its elements destroyed.
func (d *Driver[S]) Run(ctx context.Context) error {
	defer d.shutdown()

	if _, err := d.Step(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("cycle failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			return nil
		case <-d.wake:
			if _, err := d.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.logger.Error("cycle failed", "error", err)
			}
		}
	}
}

// Close stops Run. Messages sent afterwards fail with ErrClosed.
func (d *Driver[S]) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
}

func (d *Driver[S]) shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ops, err := d.root.Teardown()
	if err != nil {
		d.logger.Error("teardown failed", "error", err)
		return
	}
	if len(ops) > 0 {
		if err := d.tree.Apply(ops); err != nil {
			d.logger.Warn("element tree rejected teardown", "error", err)
		}
	}
	d.built = false
}
