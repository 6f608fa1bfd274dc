package viewid

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned by Parse for malformed input.
var ErrInvalidPath = errors.New("viewid: invalid path")

// Path is the sequence of IDs from the root to a node.
//
// A path is only meaningful against the store generation it was captured
// from. Do not cache paths across rebuilds that change ancestor identity.
type Path []ID

// Append returns a new path with id appended. The receiver is never aliased.
func (p Path) Append(id ID) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = id
	return out
}

// Clone returns a copy of the path.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Head returns the first ID. It panics on an empty path.
func (p Path) Head() ID {
	return p[0]
}

// Tail returns the path without its first ID.
func (p Path) Tail() Path {
	if len(p) == 0 {
		return nil
	}
	return p[1:]
}

// Equal reports whether two paths name the same node.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor-or-self path of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// String renders the path as "/#0/k:1f/#2". The empty path renders as "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, id := range p {
		b.WriteByte('/')
		b.WriteString(id.String())
	}
	return b.String()
}

// Parse parses the form produced by Path.String.
func Parse(s string) (Path, error) {
	if s == "/" {
		return Path{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(s[1:], "/")
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, "#"):
			n, err := strconv.ParseUint(part[1:], 10, 63)
			if err != nil {
				return nil, ErrInvalidPath
			}
			out = append(out, ID(n))
		case strings.HasPrefix(part, "k:"):
			n, err := strconv.ParseUint(part[2:], 16, 63)
			if err != nil {
				return nil, ErrInvalidPath
			}
			out = append(out, ID(n|keyedBit))
		default:
			return nil, ErrInvalidPath
		}
	}
	return out, nil
}
