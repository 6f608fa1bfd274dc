package element

import (
	"errors"
	"testing"

	"github.com/vango-dev/viewcore/pkg/viewid"
)

func buildList(t *testing.T, m *Memory, s *Script, tags ...string) (Handle, []Handle) {
	t.Helper()
	ul := s.Create("ul", viewid.Path{viewid.RootID})
	s.Insert(Root, 0, ul)
	var items []Handle
	for i, tag := range tags {
		h := s.Create(tag, viewid.Path{viewid.RootID, viewid.Position(i)})
		s.Insert(ul, i, h)
		items = append(items, h)
	}
	if err := m.Apply(s.Take()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	return ul, items
}

func TestMemoryCreateInsert(t *testing.T) {
	m := NewMemory()
	s := NewScript(&Allocator{})
	ul, items := buildList(t, m, s, "a", "b", "c")

	if got := m.Live(); got != 4 {
		t.Errorf("Live() = %d, want 4", got)
	}
	children := m.Children(ul)
	if len(children) != 3 || children[0] != items[0] || children[2] != items[2] {
		t.Errorf("Children = %v, want %v", children, items)
	}
	if got := m.Children(Root); len(got) != 1 || got[0] != ul {
		t.Errorf("root children = %v", got)
	}
}

func TestMemoryMove(t *testing.T) {
	m := NewMemory()
	s := NewScript(&Allocator{})
	ul, items := buildList(t, m, s, "a", "b", "c")

	s.Move(ul, 0, items[2])
	if err := m.Apply(s.Take()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	got := m.Children(ul)
	want := []Handle{items[2], items[0], items[1]}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Children = %v, want %v", got, want)
		}
	}
}

func TestMemoryDestroyFreesSubtree(t *testing.T) {
	m := NewMemory()
	s := NewScript(&Allocator{})
	ul, _ := buildList(t, m, s, "a", "b")

	s.Destroy(ul)
	if err := m.Apply(s.Take()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if got := m.Live(); got != 0 {
		t.Errorf("Live() = %d, want 0", got)
	}
	if got := m.Children(Root); len(got) != 0 {
		t.Errorf("root children = %v, want none", got)
	}
}

func TestMemoryStaleHandle(t *testing.T) {
	m := NewMemory()
	s := NewScript(&Allocator{})
	ul, items := buildList(t, m, s, "a")

	s.Destroy(items[0])
	s.SetAttr(items[0], "class", "x")
	err := m.Apply(s.Take())

	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("error = %v, want *OpError", err)
	}
	if opErr.Index != 1 || !errors.Is(err, ErrStaleHandle) {
		t.Errorf("error = %v, want stale handle at op 1", err)
	}
	if got := m.Children(ul); len(got) != 0 {
		t.Errorf("Children = %v, want none", got)
	}
}

func TestMemoryInsertErrors(t *testing.T) {
	m := NewMemory()
	s := NewScript(&Allocator{})
	ul, items := buildList(t, m, s, "a")

	s.Insert(ul, 0, items[0])
	if err := m.Apply(s.Take()); !errors.Is(err, ErrAttached) {
		t.Errorf("double insert error = %v, want ErrAttached", err)
	}

	h := s.Create("b", nil)
	s.Insert(ul, 5, h)
	if err := m.Apply(s.Take()); !errors.Is(err, ErrIndex) {
		t.Errorf("insert error = %v, want ErrIndex", err)
	}
}

func TestMemoryEmitAndDump(t *testing.T) {
	m := NewMemory()
	s := NewScript(&Allocator{})
	_, items := buildList(t, m, s, "li")

	s.SetAttr(items[0], "class", "done")
	s.SetText(items[0], "milk")
	if err := m.Apply(s.Take()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	msg, err := m.Emit(items[0], "click")
	if err != nil {
		t.Fatalf("Emit error: %v", err)
	}
	if want := (viewid.Path{viewid.RootID, viewid.Position(0)}); !msg.Path.Equal(want) {
		t.Errorf("Path = %v, want %v", msg.Path, want)
	}

	want := "ul\n  li class=\"done\" \"milk\"\n"
	if got := m.Dump(); got != want {
		t.Errorf("Dump() = %q, want %q", got, want)
	}

	if _, err := m.Emit(999, "click"); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Emit error = %v, want ErrStaleHandle", err)
	}
}

func TestCount(t *testing.T) {
	ops := []Op{{Kind: OpCreate}, {Kind: OpInsert}, {Kind: OpCreate}}
	c := Count(ops)
	if c[OpCreate] != 2 || c[OpInsert] != 1 || c[OpMove] != 0 {
		t.Errorf("Count = %v", c)
	}
}
