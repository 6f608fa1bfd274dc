package demo

import (
	"fmt"
	"time"
)

// Codec journals the demo's actions. It implements journal.ActionCodec.
type Codec struct{}

// EncodeAction returns the journal name and value of action.
func (Codec) EncodeAction(action any) (string, any, error) {
	switch a := action.(type) {
	case Add:
		return "add", a.Title, nil
	case Toggle:
		return "toggle", int64(a.ID), nil
	case Remove:
		return "remove", int64(a.ID), nil
	case SetFilter:
		return "filter", a.Filter, nil
	case ClearDone:
		return "clear", nil, nil
	case Tick:
		return "tick", a.Now.UnixNano(), nil
	}
	return "", nil, fmt.Errorf("demo: unknown action %T", action)
}

// DecodeAction rebuilds an action from its journal name and value.
func (Codec) DecodeAction(name string, value any) (any, error) {
	switch name {
	case "add", "filter":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("demo: %s value is %T, want string", name, value)
		}
		if name == "add" {
			return Add{Title: s}, nil
		}
		return SetFilter{Filter: s}, nil
	case "toggle", "remove", "tick":
		n, ok := value.(int64)
		if !ok {
			return nil, fmt.Errorf("demo: %s value is %T, want int64", name, value)
		}
		switch name {
		case "toggle":
			return Toggle{ID: int(n)}, nil
		case "remove":
			return Remove{ID: int(n)}, nil
		}
		return Tick{Now: time.Unix(0, n)}, nil
	case "clear":
		return ClearDone{}, nil
	}
	return nil, fmt.Errorf("demo: unknown action %q", name)
}
