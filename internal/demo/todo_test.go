package demo

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/viewcore/pkg/driver"
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/viewid"
	"github.com/vango-dev/viewcore/pkg/viewtest"
)

// The section sits below the clock subscription at the root.
var (
	formPath = viewtest.P(0, 0)
	listPath = viewtest.P(0, 1)
)

func itemPath(id int) viewid.Path {
	return viewtest.P(0, 1, strconv.Itoa(id), 0, 0)
}

func filterPath(f string) viewid.Path {
	return viewtest.P(0, 2, f)
}

func newHarness(t *testing.T) *viewtest.Harness[State] {
	return viewtest.New[State](t, &App{}, Initial())
}

func titles(t *testing.T, h *viewtest.Harness[State]) []string {
	t.Helper()
	tree := h.Tree()
	var out []string
	for _, li := range tree.Children(h.Find(listPath)) {
		text := tree.Children(li)[0]
		out = append(out, tree.Text(text))
	}
	return out
}

func TestAddToggleRemove(t *testing.T) {
	h := newHarness(t)
	for _, title := range []string{"milk", "eggs", " bread "} {
		h.Emit(formPath, map[string]any{"title": title})
	}
	h.Emit(formPath, map[string]any{"title": "   "})

	if diff := cmp.Diff([]string{"milk", "eggs", "bread"}, titles(t, h)); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}

	c := h.Emit(itemPath(2), "click")
	if c.Actions != 1 {
		t.Errorf("toggle cycle = %+v", c)
	}
	h.ExpectAttr(itemPath(2), "class", "todo done")
	if c.Stats.Unchanged == 0 {
		t.Errorf("Stats = %+v, want memoized items left unchanged", c.Stats)
	}
	h.ExpectContains("Clear completed")

	h.Emit(itemPath(1).Append(viewid.Position(1)), "click")
	if diff := cmp.Diff([]string{"eggs", "bread"}, titles(t, h)); diff != "" {
		t.Errorf("titles after remove mismatch (-want +got):\n%s", diff)
	}
	h.ExpectMissing(itemPath(1))

	state := h.State()
	if len(state.Todos) != 2 || state.NextID != 4 {
		t.Errorf("State = %+v", state)
	}
}

func TestFilterKeepsIdentity(t *testing.T) {
	h := newHarness(t)
	for _, title := range []string{"a", "b", "c"} {
		h.Emit(formPath, map[string]any{"title": title})
	}
	h.Emit(itemPath(2), "click")
	keep := h.Find(itemPath(3))

	h.Emit(filterPath(FilterActive), "click")
	if diff := cmp.Diff([]string{"a", "c"}, titles(t, h)); diff != "" {
		t.Errorf("active titles mismatch (-want +got):\n%s", diff)
	}
	if got := h.Find(itemPath(3)); got != keep {
		t.Errorf("item 3 element = %d, want %d kept", got, keep)
	}
	h.ExpectAttr(filterPath(FilterActive), "class", "selected")

	h.Emit(filterPath(FilterDone), "click")
	if diff := cmp.Diff([]string{"b"}, titles(t, h)); diff != "" {
		t.Errorf("done titles mismatch (-want +got):\n%s", diff)
	}

	h.Emit(viewtest.P(0, 2, "clear"), "click")
	h.Emit(filterPath(FilterAll), "click")
	if diff := cmp.Diff([]string{"a", "c"}, titles(t, h)); diff != "" {
		t.Errorf("titles after clear mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate(t *testing.T) {
	a := &App{}
	s := Initial()
	s = a.Update(s, Add{Title: "x"})
	s = a.Update(s, Add{Title: "y"})
	prev := s
	s = a.Update(s, Toggle{ID: 1})
	if prev.Todos[0].Done {
		t.Error("Update mutated the previous state")
	}
	s = a.Update(s, ClearDone{})
	want := []Todo{{ID: 2, Title: "y"}}
	if diff := cmp.Diff(want, s.Todos); diff != "" {
		t.Errorf("Todos mismatch (-want +got):\n%s", diff)
	}
	if got := a.Update(s, "unknown"); !cmp.Equal(got, s) {
		t.Error("unknown action changed state")
	}
}

func TestClockSubscription(t *testing.T) {
	tree := element.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := &App{TickInterval: 5 * time.Millisecond}
	d := driver.New[State](app, tree, Initial(), driver.WithLogger(logger))
	app.Dispatch = d.Dispatch

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.State().Now.IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("no tick arrived")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
	if tree.Live() != 0 {
		t.Errorf("Live() after Run = %d, want 0", tree.Live())
	}
}

func TestTreeDependsOnStateOnly(t *testing.T) {
	s := Initial()
	a := &App{}
	s = a.Update(s, Add{Title: "milk"})
	s = a.Update(s, Tick{Now: time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)})

	quiet := viewtest.New[State](t, &App{}, s)
	ticking := viewtest.New[State](t, &App{Dispatch: func(any) error { return nil }, TickInterval: time.Hour}, s)
	if diff := cmp.Diff(quiet.Tree().Dump(), ticking.Tree().Dump()); diff != "" {
		t.Errorf("tree depends on App config (-quiet +ticking):\n%s", diff)
	}
	quiet.ExpectText(viewtest.P(0, "clock"), "9:30AM")

	fresh := viewtest.New[State](t, &App{}, Initial())
	fresh.ExpectMissing(viewtest.P(0, "clock"))
}

func TestCodec(t *testing.T) {
	now := time.Unix(0, time.Date(2024, 5, 1, 9, 30, 0, 123, time.UTC).UnixNano())
	actions := []any{
		Add{Title: "milk"},
		Toggle{ID: 3},
		Remove{ID: 4},
		SetFilter{Filter: FilterDone},
		ClearDone{},
		Tick{Now: now},
	}
	for _, want := range actions {
		name, value, err := Codec{}.EncodeAction(want)
		if err != nil {
			t.Fatalf("EncodeAction(%T) error: %v", want, err)
		}
		got, err := Codec{}.DecodeAction(name, value)
		if err != nil {
			t.Fatalf("DecodeAction(%q) error: %v", name, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}

	if _, _, err := (Codec{}).EncodeAction("unknown"); err == nil {
		t.Error("EncodeAction(string) error = nil")
	}
	if _, err := (Codec{}).DecodeAction("toggle", "3"); err == nil {
		t.Error("DecodeAction(toggle, string) error = nil")
	}
	if _, err := (Codec{}).DecodeAction("launch", nil); err == nil {
		t.Error("DecodeAction(launch) error = nil")
	}
}
