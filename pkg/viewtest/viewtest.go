// Package viewtest provides testing helpers for driver applications.
//
// A Harness runs an App against an element.Memory and exposes the
// resulting tree to assertions:
//
//	func TestCounter(t *testing.T) {
//	    h := viewtest.New(t, &Counter{}, 0)
//	    h.Emit(viewtest.P(0), "click")
//	    h.ExpectText(viewtest.P(0, 0), "1")
//	}
//
// Paths are built with P, which treats ints as positions and strings as
// keys, starting below the root.
package viewtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/vango-dev/viewcore/pkg/driver"
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

// P builds a path from the root. Ints become positional ids and strings
// become keys. Any other type panics.
func P(ids ...any) viewid.Path {
	p := viewid.Path{viewid.RootID}
	for _, id := range ids {
		switch v := id.(type) {
		case int:
			p = p.Append(viewid.Position(v))
		case string:
			p = p.Append(viewid.Key(v))
		default:
			panic(fmt.Sprintf("viewtest: unsupported path element %T", id))
		}
	}
	return p
}

// Harness drives one application synchronously.
type Harness[S any] struct {
	t      testing.TB
	tree   *element.Memory
	driver *driver.Driver[S]
}

// New builds the initial tree. The driver logs nowhere unless opts set a
// logger.
func New[S any](t testing.TB, app driver.App[S], initial S, opts ...driver.Option) *Harness[S] {
	t.Helper()
	tree := element.NewMemory()
	opts = append([]driver.Option{driver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	h := &Harness[S]{t: t, tree: tree, driver: driver.New(app, tree, initial, opts...)}
	h.Step()
	return h
}

// Tree returns the element tree.
func (h *Harness[S]) Tree() *element.Memory {
	return h.tree
}

// Driver returns the driver.
func (h *Harness[S]) Driver() *driver.Driver[S] {
	return h.driver
}

// State returns the current application state.
func (h *Harness[S]) State() S {
	return h.driver.State()
}

// Step runs one cycle and fails the test on error.
func (h *Harness[S]) Step() driver.Cycle {
	h.t.Helper()
	c, err := h.driver.Step(context.Background())
	if err != nil {
		h.t.Fatalf("Step error: %v", err)
	}
	return c
}

// Emit delivers payload from the element at p and runs the cycle that
// handles it.
func (h *Harness[S]) Emit(p viewid.Path, payload any) driver.Cycle {
	h.t.Helper()
	el := h.Find(p)
	msg, err := h.tree.Emit(el, payload)
	if err != nil {
		h.t.Fatalf("Emit error: %v", err)
	}
	c, err := h.driver.Handle(context.Background(), msg)
	if err != nil {
		h.t.Fatalf("Handle error: %v", err)
	}
	return c
}

// Dispatch delivers an action directly and runs the cycle that applies it.
func (h *Harness[S]) Dispatch(action any) driver.Cycle {
	h.t.Helper()
	if err := h.driver.Dispatch(action); err != nil {
		h.t.Fatalf("Dispatch error: %v", err)
	}
	return h.Step()
}

// Find returns the element at p and fails the test if there is none.
func (h *Harness[S]) Find(p viewid.Path) element.Handle {
	h.t.Helper()
	el, ok := h.tree.Find(p)
	if !ok {
		h.t.Fatalf("no element at %s in:\n%s", p, truncate(h.tree.Dump(), 500))
	}
	return el
}

// ExpectContains checks that the dumped tree contains expected.
func (h *Harness[S]) ExpectContains(expected string) {
	h.t.Helper()
	dump := h.tree.Dump()
	if !strings.Contains(dump, expected) {
		h.t.Errorf("expected tree to contain %q, got:\n%s", expected, truncate(dump, 500))
	}
}

// ExpectNotContains checks that the dumped tree does not contain unexpected.
func (h *Harness[S]) ExpectNotContains(unexpected string) {
	h.t.Helper()
	dump := h.tree.Dump()
	if strings.Contains(dump, unexpected) {
		h.t.Errorf("expected tree not to contain %q, got:\n%s", unexpected, truncate(dump, 500))
	}
}

// ExpectElement checks that the element at p has the given tag.
func (h *Harness[S]) ExpectElement(p viewid.Path, tag string) {
	h.t.Helper()
	el, ok := h.tree.Find(p)
	if !ok {
		h.t.Errorf("expected <%s> at %s, found nothing", tag, p)
		return
	}
	if got := h.tree.Tag(el); got != tag {
		h.t.Errorf("tag at %s = %q, want %q", p, got, tag)
	}
}

// ExpectMissing checks that nothing is mounted at p.
func (h *Harness[S]) ExpectMissing(p viewid.Path) {
	h.t.Helper()
	if _, ok := h.tree.Find(p); ok {
		h.t.Errorf("expected nothing at %s", p)
	}
}

// ExpectAttr checks an attribute of the element at p.
func (h *Harness[S]) ExpectAttr(p viewid.Path, key, value string) {
	h.t.Helper()
	got, ok := h.tree.Attr(h.Find(p), key)
	if !ok {
		h.t.Errorf("attribute %s missing at %s", key, p)
		return
	}
	if got != value {
		h.t.Errorf("attribute %s at %s = %q, want %q", key, p, got, value)
	}
}

// ExpectText checks the text of the element at p.
func (h *Harness[S]) ExpectText(p viewid.Path, text string) {
	h.t.Helper()
	if got := h.tree.Text(h.Find(p)); got != text {
		h.t.Errorf("text at %s = %q, want %q", p, got, text)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
