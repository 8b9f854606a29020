package message

import (
	"math/bits"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// DatatypeClass is the family of an element type.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

// ByteOrder of numeric types.
type ByteOrder uint8

const (
	OrderLE   ByteOrder = 0
	OrderBE   ByteOrder = 1
	OrderVAX  ByteOrder = 2
	OrderNone ByteOrder = 3
)

// StringPadding is how fixed-length strings fill unused bytes.
type StringPadding uint8

const (
	PadNullTerm StringPadding = 0
	PadNullPad  StringPadding = 1
	PadSpacePad StringPadding = 2
)

type CharacterSet uint8

const (
	CharsetASCII CharacterSet = 0
	CharsetUTF8  CharacterSet = 1
)

// Datatype describes the elements of a dataset or attribute. Which fields
// are meaningful depends on Class.
type Datatype struct {
	Class     DatatypeClass
	ClassBits uint32 // the raw 24 class bits
	Size      uint32

	ByteOrder ByteOrder

	// Integers and bitfields.
	BitOffset    uint16
	BitPrecision uint16
	Signed       bool

	// Strings.
	StringPadding StringPadding
	CharSet       CharacterSet

	Members []CompoundMember

	// Arrays, and the integer type under an enum.
	ArrayDims []uint32
	BaseType  *Datatype

	EnumNames  []string
	EnumValues [][]byte

	VarLenType     *Datatype
	IsVarLenString bool

	// Properties keeps the twelve property bytes of a float as stored.
	Properties []byte
}

// CompoundMember is one field of a compound type.
type CompoundMember struct {
	Name       string
	ByteOffset uint32
	Type       *Datatype
}

func (m *Datatype) Type() Type { return TypeDatatype }

func parseDatatype(data []byte, r *binary.Reader) (*Datatype, error) {
	d := newDecoder(data, r, "datatype")
	dt := decodeDatatype(d)
	if d.err != nil {
		return nil, d.err
	}
	return dt, nil
}

// decodeDatatype reads one datatype and every type nested in it. The
// version in the high nibble of the first byte only changes how compound,
// enum and array types lay out their properties.
func decodeDatatype(d *decoder) *Datatype {
	head := d.u8()
	version := head >> 4
	cb := uint32(d.uint(3))
	dt := &Datatype{Class: DatatypeClass(head & 0x0F), ClassBits: cb, Size: d.u32()}

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.ByteOrder = ByteOrder(cb & 0x01)
		dt.Signed = dt.Class == ClassFixedPoint && cb&0x08 != 0
		dt.BitOffset, dt.BitPrecision = d.u16(), d.u16()
	case ClassFloatPoint:
		dt.ByteOrder = ByteOrder(cb & 0x01)
		if cb&0x41 == 0x41 {
			dt.ByteOrder = OrderVAX
		}
		dt.Properties = append([]byte(nil), d.take(12)...)
	case ClassTime:
		dt.ByteOrder = ByteOrder(cb & 0x01)
		dt.BitPrecision = d.u16()
	case ClassString:
		dt.StringPadding = StringPadding(cb & 0x0F)
		dt.CharSet = CharacterSet(cb >> 4 & 0x0F)
	case ClassOpaque:
		d.skip(int(cb & 0xFF)) // padded tag
	case ClassReference:
	case ClassCompound:
		dt.Members = make([]CompoundMember, cb&0xFFFF)
		for i := range dt.Members {
			dt.Members[i] = decodeMember(d, version, dt.Size)
		}
	case ClassEnum:
		dt.BaseType = decodeDatatype(d)
		dt.ByteOrder = dt.BaseType.ByteOrder
		n := int(cb & 0xFFFF)
		dt.EnumNames = make([]string, n)
		for i := range dt.EnumNames {
			dt.EnumNames[i] = d.name(version < 3)
		}
		dt.EnumValues = make([][]byte, n)
		for i := range dt.EnumValues {
			dt.EnumValues[i] = append([]byte(nil), d.take(int(dt.BaseType.Size))...)
		}
	case ClassVarLen:
		if cb&0x0F == 1 {
			dt.IsVarLenString = true
			dt.StringPadding = StringPadding(cb >> 4 & 0x0F)
			dt.CharSet = CharacterSet(cb >> 8 & 0x0F)
		}
		dt.VarLenType = decodeDatatype(d)
	case ClassArray:
		rank := int(d.u8())
		if version < 3 {
			d.skip(3)
		}
		dt.ArrayDims = make([]uint32, rank)
		for i := range dt.ArrayDims {
			dt.ArrayDims[i] = d.u32()
		}
		if version < 3 {
			d.skip(4 * rank) // permutation
		}
		dt.BaseType = decodeDatatype(d)
	default:
		d.failf("unsupported datatype class %d", dt.Class)
	}
	return dt
}

// Version 1 members carry an obsolete array description and version 3
// sizes the byte offset to the compound.
func decodeMember(d *decoder, version uint8, size uint32) CompoundMember {
	m := CompoundMember{Name: d.name(version < 3)}
	if version < 3 {
		m.ByteOffset = d.u32()
	} else {
		m.ByteOffset = uint32(d.uint(memberOffsetSize(size)))
	}
	if version == 1 {
		d.skip(28)
	}
	m.Type = decodeDatatype(d)
	return m
}

// memberOffsetSize is the width of a version 3 member offset: the fewest
// bytes that can hold the compound's size.
func memberOffsetSize(size uint32) int {
	return max(1, (bits.Len32(size)+7)/8)
}

// IsBool reports whether the type is the FALSE/TRUE enum numpy booleans
// are stored as.
func (m *Datatype) IsBool() bool {
	return m.Class == ClassEnum && m.Size == 1 && len(m.EnumNames) == 2 &&
		m.EnumNames[0] == "FALSE" && m.EnumNames[1] == "TRUE"
}

// IsComplex reports whether the type is an {r, i} compound of two floats
// of equal size.
func (m *Datatype) IsComplex() bool {
	if m.Class != ClassCompound || len(m.Members) != 2 {
		return false
	}
	r, i := m.Members[0], m.Members[1]
	return r.Name == "r" && i.Name == "i" &&
		r.Type != nil && i.Type != nil &&
		r.Type.Class == ClassFloatPoint && i.Type.Class == ClassFloatPoint &&
		r.Type.Size == i.Type.Size && r.ByteOffset == 0 && i.ByteOffset == r.Type.Size
}
