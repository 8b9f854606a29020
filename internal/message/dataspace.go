package message

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// DataspaceType is the kind of extent a dataspace describes.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Unlimited is the maximum dimension size of an extendible dimension.
const Unlimited = ^uint64(0)

// Dataspace is the extent of a dataset or attribute.
type Dataspace struct {
	Version    uint8
	Rank       int
	SpaceType  DataspaceType
	Dimensions []uint64
	MaxDims    []uint64 // nil when every dimension is fixed at its size
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NumElements is the number of elements the dataspace selects.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceSimple:
		if len(m.Dimensions) == 0 {
			return 0
		}
		n := uint64(1)
		for _, d := range m.Dimensions {
			n *= d
		}
		return n
	}
	return 0
}

func (m *Dataspace) IsScalar() bool { return m.SpaceType == DataspaceScalar }
func (m *Dataspace) IsNull() bool   { return m.SpaceType == DataspaceNull }

// Version 1 bodies carry five reserved bytes and have no type field;
// version 2 replaces them with the type.
func parseDataspace(data []byte, r *binary.Reader) (*Dataspace, error) {
	d := newDecoder(data, r, "dataspace")
	m := &Dataspace{Version: d.u8(), Rank: int(d.u8())}
	flags := d.u8()
	switch m.Version {
	case 1:
		d.skip(5)
		m.SpaceType = DataspaceSimple
		if m.Rank == 0 {
			m.SpaceType = DataspaceScalar
		}
	case 2:
		m.SpaceType = DataspaceType(d.u8())
	default:
		return nil, fmt.Errorf("unsupported dataspace version %d", m.Version)
	}
	if m.SpaceType != DataspaceSimple {
		return m, d.err
	}
	m.Dimensions = make([]uint64, m.Rank)
	for i := range m.Dimensions {
		m.Dimensions[i] = d.length()
	}
	if flags&0x01 != 0 {
		m.MaxDims = make([]uint64, m.Rank)
		for i := range m.MaxDims {
			m.MaxDims[i] = d.length()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

// encode always writes version 2.
func (m *Dataspace) encode(e *encoder) {
	var flags uint8
	if len(m.MaxDims) > 0 {
		flags = 0x01
	}
	e.u8(2)
	e.u8(uint8(len(m.Dimensions)))
	e.u8(flags)
	e.u8(uint8(m.SpaceType))
	for _, n := range m.Dimensions {
		e.length(n)
	}
	if flags != 0 {
		for _, n := range m.MaxDims {
			e.length(n)
		}
	}
}

func (m *Dataspace) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *Dataspace) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

// NewDataspace describes a simple extent. maxDims may be nil.
func NewDataspace(dims, maxDims []uint64) *Dataspace {
	return &Dataspace{Version: 2, Rank: len(dims), SpaceType: DataspaceSimple, Dimensions: dims, MaxDims: maxDims}
}

func NewScalarDataspace() *Dataspace {
	return &Dataspace{Version: 2, SpaceType: DataspaceScalar}
}
