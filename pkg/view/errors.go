package view

import (
	"errors"
	"fmt"

	"github.com/vango-dev/viewcore/pkg/viewid"
)

var (
	// ErrUnknownPath is matched by every *UnknownPathError. It is expected for
	// in-flight messages from elements removed by a rebuild.
	ErrUnknownPath = errors.New("view: unknown path")

	// ErrKindMismatch may be returned by Rebuild to request that the node be
	// torn down and materialized from the new description.
	ErrKindMismatch = errors.New("view: kind mismatch")

	// ErrReentrant is returned when Reconcile or Route is called from inside a
	// pass on the same goroutine, e.g. from a message handler.
	ErrReentrant = errors.New("view: reentrant call during reconciliation")

	// ErrConcurrentPass is returned when another goroutine calls into a Root
	// while a pass is running.
	ErrConcurrentPass = errors.New("view: concurrent reconciliation")
)

// ConfigurationError reports a malformed view description. A parent may
// substitute a fallback; otherwise the node is left as a failed placeholder.
type ConfigurationError struct {
	Path   viewid.Path
	Kind   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("view: invalid %s at %s: %s", e.Kind, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// DuplicateKeyError is returned when a sequence holds two entries with the
// same identity. The sequence update is rejected as a whole and the previous
// children are kept.
type DuplicateKeyError struct {
	Path   viewid.Path
	Key    string
	First  int
	Second int

	// Collision is set when two distinct keys hashed to the same id.
	Collision bool
	Other     string
}

// Error implements the error interface.
func (e *DuplicateKeyError) Error() string {
	if e.Collision {
		return fmt.Sprintf("view: keys %q and %q collide at %s (entries %d and %d)",
			e.Other, e.Key, e.Path, e.First, e.Second)
	}
	return fmt.Sprintf("view: duplicate key %q at %s (entries %d and %d)",
		e.Key, e.Path, e.First, e.Second)
}

// UnknownPathError reports a routing target with no node in the current
// store generation.
type UnknownPathError struct {
	Path  viewid.Path
	Depth int // index of the first unresolved segment
}

// Error implements the error interface.
func (e *UnknownPathError) Error() string {
	return fmt.Sprintf("view: unknown path %s at depth %d", e.Path, e.Depth)
}

// Is reports ErrUnknownPath as a match.
func (e *UnknownPathError) Is(target error) bool {
	return target == ErrUnknownPath
}

// PanicError wraps a panic recovered from a view callback.
type PanicError struct {
	Path  viewid.Path
	Op    string
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("view: panic in %s at %s: %v", e.Op, e.Path, e.Value)
}

// NodeError records a per-node failure contained by the reconciler.
type NodeError struct {
	Path viewid.Path
	Op   string // "build" or "rebuild"
	Err  error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}
