package protocol

import (
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

// EventFrame carries one message emitted by an element.
type EventFrame struct {
	Seq     uint64 // per connection on the wire; the driver cycle in a journal
	Path    viewid.Path
	Payload any
}

// Message returns the element message the frame carries.
func (ef *EventFrame) Message() element.Message {
	return element.Message{Path: ef.Path, Payload: ef.Payload}
}

// EncodeEvent encodes an EventFrame payload.
func EncodeEvent(ef *EventFrame) ([]byte, error) {
	e := NewEncoder()
	if err := EncodeEventTo(e, ef); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeEventTo encodes an EventFrame payload using e.
func EncodeEventTo(e *Encoder, ef *EventFrame) error {
	e.WriteUvarint(ef.Seq)
	e.WritePath(ef.Path)
	return EncodeValue(e, ef.Payload)
}

// DecodeEvent decodes an EventFrame payload.
func DecodeEvent(data []byte) (*EventFrame, error) {
	return DecodeEventFrom(NewDecoder(data))
}

// DecodeEventFrom decodes an EventFrame payload from d.
func DecodeEventFrom(d *Decoder) (*EventFrame, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	path, err := d.ReadPath()
	if err != nil {
		return nil, err
	}
	payload, err := DecodeValue(d)
	if err != nil {
		return nil, err
	}
	return &EventFrame{Seq: seq, Path: path, Payload: payload}, nil
}
