// Package journal records what a driver takes from its queue and replays it
// later against a fresh driver, one recorded cycle at a time.
//
// Element messages are written as protocol event frames and dispatched
// actions as action frames; both carry the number of the driver cycle that
// handled them. Actions need an ActionCodec: a Writer without one skips
// them. Frames are grouped into segments.
// A segment is flushed to a Sink once it reaches the configured size, or on
// Flush and Close. Segment names are UUIDv7 strings, so their lexical order
// is their write order.
package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vango-dev/viewcore/pkg/driver"
	"github.com/vango-dev/viewcore/pkg/protocol"
)

// DefaultSegmentSize is the segment size used when none is configured.
const DefaultSegmentSize = 1 << 20

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("journal: closed")

// Sink stores journal segments.
type Sink interface {
	// Put stores a segment under name.
	Put(ctx context.Context, name string, data []byte) error

	// List returns all segment names in lexical order.
	List(ctx context.Context) ([]string, error)

	// Get returns the segment stored under name.
	Get(ctx context.Context, name string) ([]byte, error)
}

// ActionCodec converts dispatched actions to journal values and back. Name
// identifies the action type; value must be encodable as a protocol payload.
type ActionCodec interface {
	EncodeAction(action any) (name string, value any, err error)
	DecodeAction(name string, value any) (any, error)
}

// Option configures a Writer.
type Option func(*Writer)

// WithSegmentSize sets the size at which a segment is flushed.
func WithSegmentSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.segmentSize = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithActionCodec journals dispatched actions through c.
func WithActionCodec(c ActionCodec) Option {
	return func(w *Writer) {
		w.codec = c
	}
}

// Writer buffers entries into segments. It is safe for concurrent use and
// satisfies driver.Recorder.
type Writer struct {
	sink        Sink
	segmentSize int
	logger      *slog.Logger
	codec       ActionCodec

	mu     sync.Mutex
	buf    *protocol.Encoder
	count  int
	closed bool
}

// NewWriter returns a Writer flushing into sink.
func NewWriter(sink Sink, opts ...Option) *Writer {
	w := &Writer{
		sink:        sink,
		segmentSize: DefaultSegmentSize,
		logger:      slog.Default(),
		buf:         protocol.NewEncoder(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record appends e to the current segment. Dispatched actions are skipped
// when the Writer has no ActionCodec.
func (w *Writer) Record(ctx context.Context, e driver.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	f := protocol.Frame{Flags: protocol.FlagReplay}
	if e.Dispatched {
		if w.codec == nil {
			w.logger.Debug("no action codec, action not journaled", "cycle", e.Cycle, "action", fmt.Sprintf("%T", e.Action))
			return nil
		}
		name, value, err := w.codec.EncodeAction(e.Action)
		if err != nil {
			return fmt.Errorf("journal: encode action %T: %w", e.Action, err)
		}
		enc := protocol.NewEncoder()
		if err := protocol.EncodeActionTo(enc, &protocol.ActionFrame{Seq: e.Cycle, Name: name, Value: value}); err != nil {
			return fmt.Errorf("journal: encode action %s: %w", name, err)
		}
		f.Type, f.Payload = protocol.FrameAction, enc.Bytes()
	} else {
		payload, err := protocol.EncodeEvent(&protocol.EventFrame{
			Seq:     e.Cycle,
			Path:    e.Message.Path,
			Payload: e.Message.Payload,
		})
		if err != nil {
			return fmt.Errorf("journal: encode message at %s: %w", e.Message.Path, err)
		}
		f.Type, f.Payload = protocol.FrameEvent, payload
	}
	f.EncodeTo(w.buf)
	w.count++

	if w.buf.Len() >= w.segmentSize {
		return w.flush(ctx)
	}
	return nil
}

// Flush writes the current segment, if it holds any entry.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush(ctx)
}

func (w *Writer) flush(ctx context.Context) error {
	if w.count == 0 {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("journal: segment name: %w", err)
	}
	name := id.String()

	data := bytes.Clone(w.buf.Bytes())
	if err := w.sink.Put(ctx, name, data); err != nil {
		return fmt.Errorf("journal: put segment %s: %w", name, err)
	}
	w.logger.Debug("journal segment flushed", "segment", name, "entries", w.count, "bytes", len(data))

	w.buf.Reset()
	w.count = 0
	return nil
}

// Close flushes the current segment. Later Records fail with ErrClosed.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.flush(ctx)
}

// DecodeSegment returns the entries of one segment in order. Action frames
// need codec.
func DecodeSegment(data []byte, codec ActionCodec) ([]driver.Entry, error) {
	r := bytes.NewReader(data)
	var entries []driver.Entry
	for {
		f, err := protocol.ReadFrame(r)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		switch f.Type {
		case protocol.FrameEvent:
			ef, err := protocol.DecodeEvent(f.Payload)
			if err != nil {
				return entries, err
			}
			entries = append(entries, driver.Entry{Cycle: ef.Seq, Message: ef.Message()})
		case protocol.FrameAction:
			af, err := protocol.DecodeAction(f.Payload)
			if err != nil {
				return entries, err
			}
			if codec == nil {
				return entries, fmt.Errorf("journal: action %s without a codec", af.Name)
			}
			action, err := codec.DecodeAction(af.Name, af.Value)
			if err != nil {
				return entries, fmt.Errorf("journal: decode action %s: %w", af.Name, err)
			}
			entries = append(entries, driver.Entry{Cycle: af.Seq, Action: action, Dispatched: true})
		default:
			return entries, fmt.Errorf("journal: unexpected %s frame", f.Type)
		}
	}
}

// Replay reads every segment of sink in order and passes fn the entries of
// one recorded cycle at a time, so each batch can be replayed with
// driver.Driver.Replay. A cycle split across segments is delivered whole.
// It stops at the first error and returns the number of entries delivered.
func Replay(ctx context.Context, sink Sink, codec ActionCodec, fn func(context.Context, []driver.Entry) error) (int, error) {
	names, err := sink.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal: list segments: %w", err)
	}

	n := 0
	var batch []driver.Entry
	deliver := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, batch); err != nil {
			return err
		}
		n += len(batch)
		batch = nil
		return nil
	}

	for _, name := range names {
		data, err := sink.Get(ctx, name)
		if err != nil {
			return n, fmt.Errorf("journal: get segment %s: %w", name, err)
		}
		entries, err := DecodeSegment(data, codec)
		if err != nil {
			return n, fmt.Errorf("journal: segment %s: %w", name, err)
		}
		for _, e := range entries {
			if len(batch) > 0 && batch[0].Cycle != e.Cycle {
				if err := deliver(); err != nil {
					return n, err
				}
			}
			batch = append(batch, e)
		}
	}
	if err := deliver(); err != nil {
		return n, err
	}
	return n, nil
}
