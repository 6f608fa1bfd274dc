package protocol

import (
	"errors"
	"fmt"
	"sort"
)

// MaxValueDepth is the maximum nesting depth of a payload value.
const MaxValueDepth = 64

// ErrMaxDepthExceeded is returned for payloads nested deeper than
// MaxValueDepth.
var ErrMaxDepthExceeded = errors.New("protocol: max depth exceeded")

// ValueType tags an encoded payload value.
type ValueType uint8

const (
	ValueNull   ValueType = 0x00
	ValueBool   ValueType = 0x01
	ValueInt    ValueType = 0x02
	ValueFloat  ValueType = 0x03
	ValueString ValueType = 0x04
	ValueBytes  ValueType = 0x05
	ValueArray  ValueType = 0x06
	ValueObject ValueType = 0x07
)

// UnsupportedValueError is returned when encoding a payload of a type the
// wire format cannot carry.
type UnsupportedValueError struct {
	Value any
}

// Error implements the error interface.
func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("protocol: unsupported payload type %T", e.Value)
}

// EncodeValue appends v. Supported types are nil, bool, int, int64, float64,
// string, []byte, []any and map[string]any (keys written in sorted order).
func EncodeValue(e *Encoder, v any) error {
	switch val := v.(type) {
	case nil:
		e.WriteByte(byte(ValueNull))
	case bool:
		e.WriteByte(byte(ValueBool))
		e.WriteBool(val)
	case int:
		e.WriteByte(byte(ValueInt))
		e.WriteSvarint(int64(val))
	case int64:
		e.WriteByte(byte(ValueInt))
		e.WriteSvarint(val)
	case float64:
		e.WriteByte(byte(ValueFloat))
		e.WriteFloat64(val)
	case string:
		e.WriteByte(byte(ValueString))
		e.WriteString(val)
	case []byte:
		e.WriteByte(byte(ValueBytes))
		e.WriteLenBytes(val)
	case []any:
		e.WriteByte(byte(ValueArray))
		e.WriteUvarint(uint64(len(val)))
		for _, item := range val {
			if err := EncodeValue(e, item); err != nil {
				return err
			}
		}
	case map[string]any:
		e.WriteByte(byte(ValueObject))
		e.WriteUvarint(uint64(len(val)))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e.WriteString(k)
			if err := EncodeValue(e, val[k]); err != nil {
				return err
			}
		}
	default:
		return &UnsupportedValueError{Value: v}
	}
	return nil
}

// DecodeValue reads a value written by EncodeValue. Integers decode as
// int64.
func DecodeValue(d *Decoder) (any, error) {
	return decodeValue(d, 0)
}

func decodeValue(d *Decoder, depth int) (any, error) {
	if depth > MaxValueDepth {
		return nil, ErrMaxDepthExceeded
	}
	tag, err := d.ReadByte()
	if err != nil {
		return nil, err
	}

	switch ValueType(tag) {
	case ValueNull:
		return nil, nil
	case ValueBool:
		return d.ReadBool()
	case ValueInt:
		return d.ReadSvarint()
	case ValueFloat:
		return d.ReadFloat64()
	case ValueString:
		return d.ReadString()
	case ValueBytes:
		return d.ReadLenBytes()
	case ValueArray:
		count, err := d.ReadCollectionCount()
		if err != nil {
			return nil, err
		}
		arr := make([]any, count)
		for i := range arr {
			if arr[i], err = decodeValue(d, depth+1); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case ValueObject:
		count, err := d.ReadCollectionCount()
		if err != nil {
			return nil, err
		}
		obj := make(map[string]any, count)
		for i := 0; i < count; i++ {
			key, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			if obj[key], err = decodeValue(d, depth+1); err != nil {
				return nil, err
			}
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("protocol: unknown value type 0x%02x", tag)
	}
}
