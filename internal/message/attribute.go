package message

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// Attribute is a small named value stored in an object header.
type Attribute struct {
	Version       uint8
	Name          string
	DatatypeSize  uint16
	DataspaceSize uint16
	Datatype      *Datatype
	Dataspace     *Dataspace
	Data          []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

// All versions share the same prefix of sizes. Version 1 pads the name,
// datatype and dataspace to eight bytes; version 3 adds the name charset.
func parseAttribute(data []byte, r *binary.Reader) (*Attribute, error) {
	d := newDecoder(data, r, "attribute")
	m := &Attribute{Version: d.u8()}
	if m.Version < 1 || m.Version > 3 {
		return nil, fmt.Errorf("unsupported attribute version %d", m.Version)
	}
	d.skip(1) // flags; shared datatypes and dataspaces are not supported
	nameSize := int(d.u16())
	m.DatatypeSize, m.DataspaceSize = d.u16(), d.u16()
	if m.Version == 3 {
		d.skip(1)
	}
	pad := func() {
		if m.Version == 1 {
			d.align(8)
		}
	}
	m.Name = d.padded(nameSize)
	pad()
	dt := d.sub(int(m.DatatypeSize), "attribute datatype")
	pad()
	ds := d.sub(int(m.DataspaceSize), "attribute dataspace")
	pad()
	m.Data = d.rest()
	if d.err != nil {
		return nil, d.err
	}

	var err error
	if m.Datatype, err = parseDatatype(dt.b, r); err != nil {
		return nil, fmt.Errorf("attribute %q: %w", m.Name, err)
	}
	if m.Dataspace, err = parseDataspace(ds.b, r); err != nil {
		return nil, fmt.Errorf("attribute %q: %w", m.Name, err)
	}
	return m, nil
}

// encode always writes version 3.
func (m *Attribute) encode(e *encoder) {
	dt, ds := e.nested(), e.nested()
	m.Datatype.encode(dt)
	m.Dataspace.encode(ds)

	var charset uint8
	if !ascii(m.Name) {
		charset = uint8(CharsetUTF8)
	}
	e.u8(3)
	e.u8(0)
	e.u16(uint16(len(m.Name) + 1))
	e.u16(uint16(len(dt.b)))
	e.u16(uint16(len(ds.b)))
	e.u8(charset)
	e.cstring(m.Name)
	e.bytes(dt.b)
	e.bytes(ds.b)
	e.bytes(m.Data)
}

func (m *Attribute) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *Attribute) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

func NewAttribute(name string, datatype *Datatype, dataspace *Dataspace, data []byte) *Attribute {
	return &Attribute{Version: 3, Name: name, Datatype: datatype, Dataspace: dataspace, Data: data}
}

// NewScalarAttribute holds a single value.
func NewScalarAttribute(name string, datatype *Datatype, data []byte) *Attribute {
	return NewAttribute(name, datatype, NewScalarDataspace(), data)
}
