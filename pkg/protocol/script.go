package protocol

import (
	"fmt"

	"github.com/vango-dev/viewcore/pkg/element"
)

// ScriptFrame carries the ops of one reconciliation pass.
type ScriptFrame struct {
	Seq uint64 // pass number, starting at 1
	Ops []element.Op
}

// EncodeScript encodes a ScriptFrame payload.
func EncodeScript(sf *ScriptFrame) []byte {
	e := NewEncoder()
	EncodeScriptTo(e, sf)
	return e.Bytes()
}

// EncodeScriptTo encodes a ScriptFrame payload using e.
//
// Each op is its kind byte followed by the fields that kind uses:
//
//	Create:     handle, tag, path
//	SetAttr:    handle, key, value
//	RemoveAttr: handle, key
//	SetText:    handle, value
//	Insert:     handle, parent, index
//	Move:       handle, parent, index
//	Destroy:    handle
func EncodeScriptTo(e *Encoder, sf *ScriptFrame) {
	e.WriteUvarint(sf.Seq)
	e.WriteUvarint(uint64(len(sf.Ops)))
	for i := range sf.Ops {
		encodeOp(e, &sf.Ops[i])
	}
}

func encodeOp(e *Encoder, op *element.Op) {
	e.WriteByte(byte(op.Kind))
	e.WriteUvarint(uint64(op.Handle))
	switch op.Kind {
	case element.OpCreate:
		e.WriteString(op.Tag)
		e.WritePath(op.Path)
	case element.OpSetAttr:
		e.WriteString(op.Key)
		e.WriteString(op.Value)
	case element.OpRemoveAttr:
		e.WriteString(op.Key)
	case element.OpSetText:
		e.WriteString(op.Value)
	case element.OpInsert, element.OpMove:
		e.WriteUvarint(uint64(op.Parent))
		e.WriteUvarint(uint64(op.Index))
	}
}

// DecodeScript decodes a ScriptFrame payload.
func DecodeScript(data []byte) (*ScriptFrame, error) {
	return DecodeScriptFrom(NewDecoder(data))
}

// DecodeScriptFrom decodes a ScriptFrame payload from d.
func DecodeScriptFrom(d *Decoder) (*ScriptFrame, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	sf := &ScriptFrame{Seq: seq, Ops: make([]element.Op, count)}
	for i := range sf.Ops {
		if err := decodeOp(d, &sf.Ops[i]); err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
	}
	return sf, nil
}

func decodeOp(d *Decoder, op *element.Op) error {
	kind, err := d.ReadByte()
	if err != nil {
		return err
	}
	op.Kind = element.OpKind(kind)
	h, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	op.Handle = element.Handle(h)

	switch op.Kind {
	case element.OpCreate:
		if op.Tag, err = d.ReadString(); err != nil {
			return err
		}
		op.Path, err = d.ReadPath()
		return err
	case element.OpSetAttr:
		if op.Key, err = d.ReadString(); err != nil {
			return err
		}
		op.Value, err = d.ReadString()
		return err
	case element.OpRemoveAttr:
		op.Key, err = d.ReadString()
		return err
	case element.OpSetText:
		op.Value, err = d.ReadString()
		return err
	case element.OpInsert, element.OpMove:
		parent, err := d.ReadUvarint()
		if err != nil {
			return err
		}
		index, err := d.ReadUvarint()
		if err != nil {
			return err
		}
		if index > MaxCollectionCount {
			return ErrCollectionTooLarge
		}
		op.Parent = element.Handle(parent)
		op.Index = int(index)
		return nil
	case element.OpDestroy:
		return nil
	default:
		return fmt.Errorf("protocol: unknown op kind %d", kind)
	}
}
