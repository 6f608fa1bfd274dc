package protocol

// ActionFrame carries one action dispatched to the application. Name
// identifies the action type and Value holds its fields as a payload value.
type ActionFrame struct {
	Seq   uint64
	Name  string
	Value any
}

// EncodeActionTo encodes an ActionFrame payload using e.
func EncodeActionTo(e *Encoder, af *ActionFrame) error {
	e.WriteUvarint(af.Seq)
	e.WriteString(af.Name)
	return EncodeValue(e, af.Value)
}

// DecodeAction decodes an ActionFrame payload.
func DecodeAction(data []byte) (*ActionFrame, error) {
	return DecodeActionFrom(NewDecoder(data))
}

// DecodeActionFrom decodes an ActionFrame payload from d.
func DecodeActionFrom(d *Decoder) (*ActionFrame, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	name, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	value, err := DecodeValue(d)
	if err != nil {
		return nil, err
	}
	return &ActionFrame{Seq: seq, Name: name, Value: value}, nil
}
