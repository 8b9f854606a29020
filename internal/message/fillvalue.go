package message

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// Storage allocation times.
const (
	AllocEarly       = 1
	AllocLate        = 2
	AllocIncremental = 3
)

// Fill value write times.
const (
	FillOnAlloc = 0
	FillNever   = 1
	FillIfSet   = 2
)

// FillValue says what unwritten elements read as and when storage is
// allocated for them.
type FillValue struct {
	Version        uint8
	SpaceAllocTime uint8
	FillWriteTime  uint8
	IsDefined      bool
	Size           uint32
	Value          []byte
}

func (m *FillValue) Type() Type { return TypeFillValue }

func parseFillValue(data []byte, r *binary.Reader) (*FillValue, error) {
	d := newDecoder(data, r, "fill value")
	m := &FillValue{Version: d.u8()}
	switch m.Version {
	case 1, 2:
		m.SpaceAllocTime, m.FillWriteTime = d.u8(), d.u8()
		m.IsDefined = d.u8() != 0
		if m.Version == 1 || m.IsDefined {
			m.Size = d.u32()
		}
	case 3:
		flags := d.u8()
		m.SpaceAllocTime = flags & 0x03
		m.FillWriteTime = flags >> 2 & 0x03
		m.IsDefined = flags&0x10 == 0
		if flags&0x20 != 0 {
			m.Size = d.u32()
		}
	default:
		return nil, fmt.Errorf("unsupported fill value version %d", m.Version)
	}
	if m.Size > 0 {
		m.Value = append([]byte(nil), d.take(int(m.Size))...)
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

// encode always writes version 3.
func (m *FillValue) encode(e *encoder) {
	flags := m.SpaceAllocTime&0x03 | (m.FillWriteTime&0x03)<<2
	if !m.IsDefined {
		flags |= 0x10
	}
	if len(m.Value) > 0 {
		flags |= 0x20
	}
	e.u8(3)
	e.u8(flags)
	if len(m.Value) > 0 {
		e.u32(uint32(len(m.Value)))
		e.bytes(m.Value)
	}
}

func (m *FillValue) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *FillValue) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

// NewFillValue is the fill message of a chunked dataset whose unwritten
// elements read as zeros.
func NewFillValue() *FillValue {
	return &FillValue{Version: 3, SpaceAllocTime: AllocIncremental, FillWriteTime: FillIfSet, IsDefined: true}
}
