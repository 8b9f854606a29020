package message

import (
	"github.com/robert-malhotra/go-audata/internal/binary"
)

// encode writes version 1 for atomic types, version 2 for arrays and
// version 3 for compounds and enums, whose member names are then unpadded.
func (m *Datatype) encode(e *encoder) {
	version := uint8(1)
	cb := m.ClassBits
	switch m.Class {
	case ClassArray:
		version = 2
	case ClassCompound:
		version, cb = 3, cb&^0xFFFF|uint32(len(m.Members))
	case ClassEnum:
		version, cb = 3, cb&^0xFFFF|uint32(len(m.EnumNames))
	}
	e.u8(uint8(m.Class) | version<<4)
	e.uint(uint64(cb), 3)
	e.u32(m.Size)

	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		e.u16(m.BitOffset)
		e.u16(m.BitPrecision)
	case ClassFloatPoint:
		props := m.Properties
		if len(props) != 12 {
			props = ieeeProperties(m.Size)
		}
		e.bytes(props)
	case ClassTime:
		e.u16(m.BitPrecision)
	case ClassCompound:
		width := memberOffsetSize(m.Size)
		for _, mem := range m.Members {
			e.cstring(mem.Name)
			e.uint(uint64(mem.ByteOffset), width)
			mem.Type.encode(e)
		}
	case ClassEnum:
		m.BaseType.encode(e)
		for _, name := range m.EnumNames {
			e.cstring(name)
		}
		for _, v := range m.EnumValues {
			e.bytes(v)
		}
	case ClassArray:
		e.u8(uint8(len(m.ArrayDims)))
		e.zeros(3)
		for _, n := range m.ArrayDims {
			e.u32(n)
		}
		for i := range m.ArrayDims {
			e.u32(uint32(i))
		}
		m.BaseType.encode(e)
	case ClassVarLen:
		m.VarLenType.encode(e)
	}
}

func (m *Datatype) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *Datatype) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

// ieeeProperties are the float properties of IEEE 754 binary16, binary32
// and binary64: bit offset and precision, exponent location and size,
// mantissa location and size, exponent bias.
func ieeeProperties(size uint32) []byte {
	var expLoc, expSize, mantSize uint8
	var bias uint32
	switch size {
	case 2:
		expLoc, expSize, mantSize, bias = 10, 5, 10, 15
	case 4:
		expLoc, expSize, mantSize, bias = 23, 8, 23, 127
	case 8:
		expLoc, expSize, mantSize, bias = 52, 11, 52, 1023
	default:
		return make([]byte, 12)
	}
	e := &encoder{}
	e.u16(0)
	e.u16(uint16(size * 8))
	e.u8(expLoc)
	e.u8(expSize)
	e.u8(0)
	e.u8(mantSize)
	e.u32(bias)
	return e.b
}

func NewFixedPointDatatype(size uint32, signed bool, order ByteOrder) *Datatype {
	cb := uint32(order)
	if signed {
		cb |= 0x08
	}
	return &Datatype{
		Class:        ClassFixedPoint,
		ClassBits:    cb,
		Size:         size,
		ByteOrder:    order,
		BitPrecision: uint16(size * 8),
		Signed:       signed,
	}
}

// NewFloatDatatype is an IEEE float of 2, 4 or 8 bytes. The class bits
// hold the byte order, an implied mantissa MSB and the sign bit position.
func NewFloatDatatype(size uint32, order ByteOrder) *Datatype {
	return &Datatype{
		Class:      ClassFloatPoint,
		ClassBits:  uint32(order) | 0x20 | (size*8-1)<<8,
		Size:       size,
		ByteOrder:  order,
		Properties: ieeeProperties(size),
	}
}

func NewStringDatatype(size uint32, padding StringPadding, charset CharacterSet) *Datatype {
	return &Datatype{
		Class:         ClassString,
		ClassBits:     uint32(padding) | uint32(charset)<<4,
		Size:          size,
		StringPadding: padding,
		CharSet:       charset,
	}
}

// NewVarLenStringDatatype is a variable-length string: a length and a
// global heap reference to its bytes. Like libhdf5 it is a sequence of
// unsigned bytes flagged as a string.
func NewVarLenStringDatatype(charset CharacterSet) *Datatype {
	return &Datatype{
		Class:          ClassVarLen,
		ClassBits:      1 | uint32(PadNullTerm)<<4 | uint32(charset)<<8,
		Size:           16,
		CharSet:        charset,
		VarLenType:     NewFixedPointDatatype(1, false, OrderLE),
		IsVarLenString: true,
	}
}

func NewCompoundDatatype(size uint32, members []CompoundMember) *Datatype {
	return &Datatype{Class: ClassCompound, ClassBits: uint32(len(members)), Size: size, Members: members}
}

// NewEnumDatatype maps names[i] to values[i] over an integer base type.
func NewEnumDatatype(base *Datatype, names []string, values []int64) *Datatype {
	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = make([]byte, base.Size)
		binary.PutUintLE(encoded[i], uint64(v), int(base.Size))
	}
	return &Datatype{
		Class:      ClassEnum,
		ClassBits:  uint32(len(names)),
		Size:       base.Size,
		ByteOrder:  base.ByteOrder,
		BaseType:   base,
		EnumNames:  names,
		EnumValues: encoded,
	}
}

// NewBoolDatatype is the enum h5py stores numpy booleans as.
func NewBoolDatatype() *Datatype {
	return NewEnumDatatype(NewFixedPointDatatype(1, true, OrderLE), []string{"FALSE", "TRUE"}, []int64{0, 1})
}

// NewComplexDatatype is the {r, i} compound h5py stores numpy complex
// numbers as.
func NewComplexDatatype(size uint32) *Datatype {
	half := size / 2
	return NewCompoundDatatype(size, []CompoundMember{
		{Name: "r", Type: NewFloatDatatype(half, OrderLE)},
		{Name: "i", ByteOffset: half, Type: NewFloatDatatype(half, OrderLE)},
	})
}
