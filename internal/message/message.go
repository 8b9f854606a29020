// Package message decodes and encodes the header messages that describe an
// HDF5 object: its dataspace, datatype, storage layout, filters, attributes
// and links.
//
// Parse turns a raw message body into one of the typed messages below.
// Types this package does not model come back as *Unknown so headers can be
// copied through unchanged. Messages that implement Serializable can be
// written into a new object header.
package message

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// Type is a header message type number.
type Type uint16

const (
	TypeNIL                      Type = 0x0000
	TypeDataspace                Type = 0x0001
	TypeLinkInfo                 Type = 0x0002
	TypeDatatype                 Type = 0x0003
	TypeFillValueOld             Type = 0x0004
	TypeFillValue                Type = 0x0005
	TypeLink                     Type = 0x0006
	TypeExternalDataFiles        Type = 0x0007
	TypeDataLayout               Type = 0x0008
	TypeBogus                    Type = 0x0009
	TypeGroupInfo                Type = 0x000A
	TypeFilterPipeline           Type = 0x000B
	TypeAttribute                Type = 0x000C
	TypeObjectComment            Type = 0x000D
	TypeObjectModTime            Type = 0x000E
	TypeSharedMessageTable       Type = 0x000F
	TypeObjectHeaderContinuation Type = 0x0010
	TypeSymbolTable              Type = 0x0011
	TypeObjectModTimeOld         Type = 0x0012
	TypeBTreeKValues             Type = 0x0013
	TypeDriverInfo               Type = 0x0014
	TypeAttributeInfo            Type = 0x0015
	TypeObjectRefCount           Type = 0x0016
)

// flagShared marks a message whose body points at a shared copy.
const flagShared = 0x02

// Message is a decoded header message.
type Message interface {
	Type() Type
}

// Parse decodes the body of a message of type typ. r supplies the file's
// offset and length sizes.
func Parse(typ Type, data []byte, flags uint8, r *binary.Reader) (Message, error) {
	if flags&flagShared != 0 {
		return &Unknown{typ: typ, data: data}, nil
	}
	switch typ {
	case TypeDataspace:
		return parseDataspace(data, r)
	case TypeLinkInfo:
		return parseLinkInfo(data, r)
	case TypeDatatype:
		return parseDatatype(data, r)
	case TypeFillValue:
		return parseFillValue(data, r)
	case TypeLink:
		return parseLink(data, r)
	case TypeDataLayout:
		return parseDataLayout(data, r)
	case TypeGroupInfo:
		return parseGroupInfo(data, r)
	case TypeFilterPipeline:
		return parseFilterPipeline(data, r)
	case TypeAttribute:
		return parseAttribute(data, r)
	case TypeObjectHeaderContinuation:
		return ParseContinuation(data, r)
	case TypeSymbolTable:
		return parseSymbolTable(data, r)
	}
	return &Unknown{typ: typ, data: data}, nil
}

// Unknown carries the body of a message this package does not decode.
type Unknown struct {
	typ  Type
	data []byte
}

func (m *Unknown) Type() Type   { return m.typ }
func (m *Unknown) Data() []byte { return m.data }

// Continuation points at the next block of an object header.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeObjectHeaderContinuation }

func ParseContinuation(data []byte, r *binary.Reader) (*Continuation, error) {
	d := newDecoder(data, r, "continuation")
	c := &Continuation{Offset: d.offset(), Length: d.length()}
	if d.err != nil {
		return nil, d.err
	}
	if c.Length == 0 {
		return nil, fmt.Errorf("empty continuation block at %d", c.Offset)
	}
	return c, nil
}

// SymbolTable locates the B-tree and local heap of an old-style group.
type SymbolTable struct {
	BTreeAddress     uint64
	LocalHeapAddress uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func parseSymbolTable(data []byte, r *binary.Reader) (*SymbolTable, error) {
	d := newDecoder(data, r, "symbol table")
	m := &SymbolTable{BTreeAddress: d.offset(), LocalHeapAddress: d.offset()}
	return m, d.err
}
