package viewid

import (
	"testing"
)

func TestPositionAndKeyDisjoint(t *testing.T) {
	for i := 0; i < 64; i++ {
		if Position(i).IsKeyed() {
			t.Errorf("Position(%d).IsKeyed() = true, want false", i)
		}
	}
	if !Key("a").IsKeyed() {
		t.Error("Key(a).IsKeyed() = false, want true")
	}
	if Key("0") == Position(0) {
		t.Error("Key(\"0\") collides with Position(0)")
	}
}

func TestKeyDeterministic(t *testing.T) {
	if Key("item-1") != Key("item-1") {
		t.Error("Key is not deterministic")
	}
	if Key("item-1") == Key("item-2") {
		t.Error("distinct keys produced the same ID")
	}
}

func TestIndex(t *testing.T) {
	if got := Position(7).Index(); got != 7 {
		t.Errorf("Index() = %d, want 7", got)
	}
	if got := Key("x").Index(); got != -1 {
		t.Errorf("Index() = %d, want -1", got)
	}
}

func TestPositionNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for negative position")
		}
	}()
	Position(-1)
}

func TestPathAppendDoesNotAlias(t *testing.T) {
	base := make(Path, 1, 8)
	base[0] = RootID
	a := base.Append(Position(1))
	b := base.Append(Position(2))
	if a[1] != Position(1) || b[1] != Position(2) {
		t.Errorf("Append aliased: a=%v b=%v", a, b)
	}
}

func TestPathPrefix(t *testing.T) {
	p := Path{RootID, Key("a"), Position(3)}
	if !p.HasPrefix(Path{RootID, Key("a")}) {
		t.Error("HasPrefix = false, want true")
	}
	if p.HasPrefix(Path{RootID, Key("b")}) {
		t.Error("HasPrefix = true, want false")
	}
	if p.HasPrefix(append(p.Clone(), Position(0))) {
		t.Error("longer prefix reported as prefix")
	}
	if !p.Tail().Equal(Path{Key("a"), Position(3)}) {
		t.Errorf("Tail = %v", p.Tail())
	}
}

func TestPathStringRoundTrip(t *testing.T) {
	tests := []Path{
		{},
		{RootID},
		{RootID, Key("todo-42"), Position(12)},
	}
	for _, p := range tests {
		s := p.String()
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if !got.Equal(p) {
			t.Errorf("Parse(%q) = %v, want %v", s, got, p)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "#0", "/x1", "/#abc", "/k:zz"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}
