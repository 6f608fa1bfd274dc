package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/view"
	"github.com/vango-dev/viewcore/pkg/viewid"
	"github.com/vango-dev/viewcore/pkg/views"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counterApp() Funcs[int] {
	return Funcs[int]{
		ViewFunc: func(n int) view.View {
			return views.Element{
				Tag:      "button",
				Children: view.Items(views.Text(strconv.Itoa(n))),
				On:       func(any) any { return "inc" },
			}
		},
		UpdateFunc: func(n int, action any) int {
			if action == "inc" {
				return n + 1
			}
			return n
		},
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func click(t *testing.T, tree *element.Memory) element.Message {
	t.Helper()
	h, ok := tree.Find(viewid.Path{viewid.RootID})
	if !ok {
		t.Fatal("button not found")
	}
	msg, err := tree.Emit(h, "click")
	if err != nil {
		t.Fatalf("Emit error: %v", err)
	}
	return msg
}

func TestStepBuildsAndRoutes(t *testing.T) {
	tree := element.NewMemory()
	d := New[int](counterApp(), tree, 0, WithLogger(discardLogger()))
	ctx := context.Background()

	c, err := d.Step(ctx)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if !c.Rebuilt || c.Ops == 0 {
		t.Errorf("first cycle = %+v, want rebuilt with ops", c)
	}
	if got, want := tree.Dump(), "button\n  #text \"0\"\n"; got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}

	if err := d.Send(click(t, tree)); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	c, err = d.Step(ctx)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if c.Messages != 1 || c.Actions != 1 || !c.Rebuilt {
		t.Errorf("cycle = %+v, want 1 message, 1 action, rebuilt", c)
	}
	if c.Ops != 1 {
		t.Errorf("Ops = %d, want 1 (text update)", c.Ops)
	}
	if got := d.State(); got != 1 {
		t.Errorf("State() = %d, want 1", got)
	}
	if got, want := tree.Dump(), "button\n  #text \"1\"\n"; got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}

	c, err = d.Step(ctx)
	if err != nil || c.Rebuilt {
		t.Errorf("idle cycle = %+v, %v, want no rebuild", c, err)
	}
}

func TestStaleMessageDropped(t *testing.T) {
	tree := element.NewMemory()
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	d := New[int](counterApp(), tree, 0, WithLogger(discardLogger()), WithMetrics(m))
	ctx := context.Background()
	if _, err := d.Step(ctx); err != nil {
		t.Fatalf("Step error: %v", err)
	}

	_ = d.Send(element.Message{Path: viewid.Path{viewid.RootID, viewid.Key("gone")}, Payload: "click"})
	c, err := d.Step(ctx)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if c.Stale != 1 || c.Actions != 0 || c.Rebuilt {
		t.Errorf("cycle = %+v, want 1 stale and no rebuild", c)
	}
	if got := counterValue(t, m.messages.WithLabelValues("stale")); got != 1 {
		t.Errorf("stale messages = %v, want 1", got)
	}
}

func TestDispatch(t *testing.T) {
	tree := element.NewMemory()
	d := New[int](counterApp(), tree, 0, WithLogger(discardLogger()))
	ctx := context.Background()
	_, _ = d.Step(ctx)

	if err := d.Dispatch("inc"); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	_ = d.Dispatch("inc")
	c, err := d.Step(ctx)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if c.Actions != 2 || c.Messages != 0 || !c.Rebuilt {
		t.Errorf("cycle = %+v, want 2 actions, rebuilt", c)
	}
	if got := d.State(); got != 2 {
		t.Errorf("State() = %d, want 2", got)
	}
}

func TestQueueFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	d := New[int](counterApp(), element.NewMemory(), 0,
		WithLogger(discardLogger()), WithQueueSize(1), WithMetrics(m))

	if err := d.Dispatch("inc"); err != nil {
		t.Fatalf("first Dispatch error: %v", err)
	}
	if err := d.Dispatch("inc"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Dispatch error = %v, want ErrQueueFull", err)
	}
	if got := counterValue(t, m.queueFull); got != 1 {
		t.Errorf("queue_full_total = %v, want 1", got)
	}

	if _, err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if got := d.State(); got != 1 {
		t.Errorf("State() = %d, want 1", got)
	}
}

func TestHandleDeliversPastQueueCapacity(t *testing.T) {
	tree := element.NewMemory()
	d := New[int](counterApp(), tree, 0, WithLogger(discardLogger()), WithQueueSize(1))
	ctx := context.Background()
	_, _ = d.Step(ctx)

	msg := click(t, tree)
	_ = d.Send(msg)
	if _, err := d.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if got := d.State(); got != 2 {
		t.Errorf("State() = %d, want 2", got)
	}
}

func TestUpdatePanicContained(t *testing.T) {
	app := counterApp()
	app.UpdateFunc = func(int, any) int { panic("boom") }
	d := New[int](app, element.NewMemory(), 5, WithLogger(discardLogger()))

	_ = d.Dispatch("inc")
	if _, err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if got := d.State(); got != 5 {
		t.Errorf("State() = %d, want 5", got)
	}
}

type recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *recorder) Record(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func TestJournalRecordsQueuedEntries(t *testing.T) {
	tree := element.NewMemory()
	rec := &recorder{}
	d := New[int](counterApp(), tree, 0, WithLogger(discardLogger()), WithJournal(rec))
	ctx := context.Background()
	_, _ = d.Step(ctx)

	_ = d.Send(click(t, tree))
	_ = d.Dispatch("inc")
	_ = d.Send(element.Message{Path: viewid.Path{viewid.RootID, viewid.Position(9)}})
	c, err := d.Step(ctx)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}

	if len(rec.entries) != 3 {
		t.Fatalf("recorded %d entries, want 3", len(rec.entries))
	}
	for i, e := range rec.entries {
		if e.Cycle != c.Seq {
			t.Errorf("entry %d Cycle = %d, want %d", i, e.Cycle, c.Seq)
		}
	}
	if first := rec.entries[0]; first.Dispatched || !first.Message.Path.Equal(viewid.Path{viewid.RootID}) || first.Message.Payload != "click" {
		t.Errorf("first recorded = %+v", first)
	}
	if second := rec.entries[1]; !second.Dispatched || second.Action != "inc" {
		t.Errorf("second recorded = %+v, want dispatched inc", second)
	}
}

// blinker shows its button only while the count is even.
func blinker() Funcs[int] {
	app := counterApp()
	app.ViewFunc = func(n int) view.View {
		var kids view.Seq
		if n%2 == 0 {
			kids = append(kids, view.Keyed("a", views.Element{Tag: "button", On: func(any) any { return "inc" }}))
		}
		return views.Element{Tag: "div", Children: kids}
	}
	return app
}

func TestReplayRoutesBatchAgainstOneTree(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	tree := element.NewMemory()
	d := New[int](blinker(), tree, 0, WithLogger(discardLogger()), WithJournal(rec))
	_, _ = d.Step(ctx)

	a := viewid.Path{viewid.RootID, viewid.Key("a")}
	_ = d.Send(element.Message{Path: a, Payload: "click"})
	_ = d.Send(element.Message{Path: a, Payload: "click"})
	_ = d.Dispatch("inc")
	live, err := d.Step(ctx)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if live.Stale != 0 || live.Actions != 3 || d.State() != 3 {
		t.Fatalf("live cycle = %+v, state %d; want 3 actions, nothing stale, state 3", live, d.State())
	}

	replayed := New[int](blinker(), element.NewMemory(), 0, WithLogger(discardLogger()))
	_, _ = replayed.Step(ctx)
	c, err := replayed.Replay(ctx, rec.entries)
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if c.Stale != 0 || c.Actions != 3 || c.Messages != 2 {
		t.Errorf("replayed cycle = %+v, want 2 messages, 3 actions, nothing stale", c)
	}
	if got := replayed.State(); got != 3 {
		t.Errorf("replayed State() = %d, want 3", got)
	}

	// One entry per cycle rebuilds in between: the second click finds
	// the button gone.
	single := New[int](blinker(), element.NewMemory(), 0, WithLogger(discardLogger()))
	_, _ = single.Step(ctx)
	stale := 0
	for _, e := range rec.entries {
		c, err := single.Replay(ctx, []Entry{e})
		if err != nil {
			t.Fatalf("Replay error: %v", err)
		}
		stale += c.Stale
	}
	if stale != 1 || single.State() != 2 {
		t.Errorf("per-entry replay: %d stale, state %d; want 1 stale, state 2", stale, single.State())
	}
}

// rebuildOnClick asks for a rebuild when its own element is clicked.
type rebuildOnClick struct {
	Child view.View
}

func (r rebuildOnClick) Build(cx *view.Cx) (any, element.Handle, error) {
	el, err := cx.BuildChild(viewid.Position(0), r.Child)
	return nil, el, err
}

func (r rebuildOnClick) Rebuild(cx *view.Cx, prev view.View, state any, el element.Handle) (any, view.Change, error) {
	_, change := cx.RebuildChild(viewid.Position(0), r.Child)
	return state, change, nil
}

func (rebuildOnClick) Teardown(cx *view.Cx, state any, el element.Handle) {}

func (rebuildOnClick) Message(cx *view.Cx, rest viewid.Path, state any, payload any) (view.Result, error) {
	if len(rest) == 0 {
		return view.RequestRebuild(), nil
	}
	return cx.MessageChild(rest, payload)
}

func TestRequestRebuildWithoutAction(t *testing.T) {
	tree := element.NewMemory()
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	renders := 0
	app := Funcs[int]{ViewFunc: func(n int) view.View {
		renders++
		return rebuildOnClick{Child: views.El("p", nil, views.Text(strconv.Itoa(n)))}
	}}
	d := New[int](app, tree, 0, WithLogger(discardLogger()), WithMetrics(m))
	ctx := context.Background()
	_, _ = d.Step(ctx)

	_ = d.Send(click(t, tree))
	c, err := d.Step(ctx)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if !c.Rebuilt || c.Actions != 0 || c.Ops != 0 {
		t.Errorf("cycle = %+v, want a rebuild with no actions and no ops", c)
	}
	if renders != 2 {
		t.Errorf("View called %d times, want 2", renders)
	}
	if got := counterValue(t, m.messages.WithLabelValues("rebuild")); got != 1 {
		t.Errorf("rebuild messages = %v, want 1", got)
	}
}

type rejectingTree struct{}

func (rejectingTree) Apply(ops []element.Op) error {
	return errors.New("rejected")
}

func TestApplyErrorReturned(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	d := New[int](counterApp(), rejectingTree{}, 0, WithLogger(discardLogger()), WithMetrics(m))

	if _, err := d.Step(context.Background()); err == nil {
		t.Fatal("Step error = nil, want apply error")
	}
	if got := counterValue(t, m.applyErrors); got != 1 {
		t.Errorf("apply_errors_total = %v, want 1", got)
	}
}

func TestCycleMetrics(t *testing.T) {
	tree := element.NewMemory()
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))
	d := New[int](counterApp(), tree, 0, WithLogger(discardLogger()), WithMetrics(m))
	ctx := context.Background()

	_, _ = d.Step(ctx)
	_ = d.Send(click(t, tree))
	_, _ = d.Step(ctx)

	if got := counterValue(t, m.cycles); got != 2 {
		t.Errorf("cycles_total = %v, want 2", got)
	}
	if got := counterValue(t, m.messages.WithLabelValues("action")); got != 1 {
		t.Errorf("action messages = %v, want 1", got)
	}
	if got := counterValue(t, m.ops.WithLabelValues(element.OpCreate.String())); got != 2 {
		t.Errorf("create ops = %v, want 2", got)
	}
	if got := gaugeValue(t, m.liveNodes); got != 2 {
		t.Errorf("live_nodes = %v, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_driver_cycle_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("cycle duration histogram not registered")
	}
}

func TestMetricsOptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(
		WithRegistry(reg),
		WithNamespace("ns"),
		WithSubsystem("sub"),
		WithConstLabels(prometheus.Labels{"app": "todo"}),
		WithBuckets([]float64{0.01, 0.1}),
	)
	d := New[int](counterApp(), element.NewMemory(), 0, WithLogger(discardLogger()), WithMetrics(m))
	if _, err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	cycles, ok := byName["ns_sub_cycles_total"]
	if !ok {
		t.Fatal("ns_sub_cycles_total not registered")
	}
	labels := cycles.GetMetric()[0].GetLabel()
	if len(labels) != 1 || labels[0].GetName() != "app" || labels[0].GetValue() != "todo" {
		t.Errorf("cycles_total labels = %v, want app=todo", labels)
	}

	hist, ok := byName["ns_sub_cycle_duration_seconds"]
	if !ok {
		t.Fatal("ns_sub_cycle_duration_seconds not registered")
	}
	if got := len(hist.GetMetric()[0].GetHistogram().GetBucket()); got != 2 {
		t.Errorf("histogram buckets = %d, want 2", got)
	}
}

func TestViewOptions(t *testing.T) {
	tree := element.NewMemory()
	d := New[int](counterApp(), tree, 0, WithLogger(discardLogger()), WithViewOptions(view.WithDebugIDs()))
	if _, err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step error: %v", err)
	}
	h, ok := tree.Find(viewid.Path{viewid.RootID})
	if !ok {
		t.Fatal("button not found")
	}
	if _, ok := tree.Attr(h, views.DebugIDAttr); !ok {
		t.Errorf("button has no %s", views.DebugIDAttr)
	}
}

func TestRunAndClose(t *testing.T) {
	tree := element.NewMemory()
	d := New[int](counterApp(), tree, 0, WithLogger(discardLogger()))

	done := make(chan error, 1)
	go func() {
		done <- d.Run(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for tree.Live() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("view was not built")
		}
		time.Sleep(time.Millisecond)
	}
	_ = d.Dispatch("inc")
	for d.State() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("action was not applied")
		}
		time.Sleep(time.Millisecond)
	}

	d.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if got := tree.Live(); got != 0 {
		t.Errorf("Live() after Run = %d, want 0", got)
	}
	if err := d.Send(element.Message{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close error = %v, want ErrClosed", err)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	d := New[int](counterApp(), element.NewMemory(), 0, WithLogger(discardLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}
