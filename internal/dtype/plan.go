package dtype

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/heap"
	"github.com/robert-malhotra/go-audata/internal/message"
	"github.com/robert-malhotra/go-audata/record"
)

// ErrUnsupported is returned for datatypes with no record mapping.
var ErrUnsupported = errors.New("unsupported datatype")

// ScalarField names the single field of a dataset whose elements are not
// compounds.
const ScalarField = "value"

type member struct {
	field  int // index in the layout
	offset uint32
	dt     *message.Datatype
}

// Plan pairs an HDF5 element type with a record layout.
type Plan struct {
	Layout  record.Layout
	Type    *message.Datatype
	members []member
	scalar  bool
}

// ForLayout builds the compound datatype for l. Fixed-width fields keep
// their record offsets; each string field gets a variable-length slot after
// the fixed part.
func ForLayout(l record.Layout, offsetSize int) *Plan {
	slot := uint32(heap.VlenRefSize(offsetSize))
	size := uint32(l.RowSize)
	p := &Plan{Layout: l, members: make([]member, len(l.Fields))}
	cm := make([]message.CompoundMember, len(l.Fields))

	for i, f := range l.Fields {
		var dt *message.Datatype
		offset := uint32(f.Offset)
		switch f.Kind {
		case record.Int:
			dt = message.NewFixedPointDatatype(uint32(f.Size), true, message.OrderLE)
		case record.Uint:
			dt = message.NewFixedPointDatatype(uint32(f.Size), false, message.OrderLE)
		case record.Float:
			dt = message.NewFloatDatatype(uint32(f.Size), message.OrderLE)
		case record.Bool:
			dt = message.NewBoolDatatype()
		case record.Complex:
			dt = message.NewComplexDatatype(uint32(f.Size))
		case record.String:
			dt = message.NewVarLenStringDatatype(message.CharsetUTF8)
			dt.Size = slot
			offset = size
			size += slot
		}
		cm[i] = message.CompoundMember{Name: f.Name, ByteOffset: offset, Type: dt}
		p.members[i] = member{field: i, offset: offset, dt: dt}
	}
	p.Type = message.NewCompoundDatatype(size, cm)
	return p
}

// FromType derives a record layout from a stored element type. Compounds map
// member by member; any other type becomes a single field named
// ScalarField.
func FromType(dt *message.Datatype) (*Plan, error) {
	if dt == nil {
		return nil, fmt.Errorf("%w: missing datatype", ErrUnsupported)
	}
	p := &Plan{Type: dt}
	var fields []record.Field

	if dt.Class == message.ClassCompound && !dt.IsComplex() {
		for i, m := range dt.Members {
			f, err := fieldFor(m.Name, m.Type)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
			p.members = append(p.members, member{field: i, offset: m.ByteOffset, dt: m.Type})
		}
	} else {
		f, err := fieldFor(ScalarField, dt)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		p.members = append(p.members, member{field: 0, offset: 0, dt: dt})
		p.scalar = true
	}

	layout, err := record.NewLayout(fields...)
	if err != nil {
		return nil, err
	}
	p.Layout = layout
	return p, nil
}

func fieldFor(name string, dt *message.Datatype) (record.Field, error) {
	if dt == nil {
		return record.Field{}, fmt.Errorf("%w: member %q has no type", ErrUnsupported, name)
	}
	numeric := func(kind record.Kind) (record.Field, error) {
		if dt.ByteOrder != message.OrderLE {
			return record.Field{}, fmt.Errorf("%w: member %q is not little-endian", ErrUnsupported, name)
		}
		return record.Field{Name: name, Kind: kind, Size: int(dt.Size)}, nil
	}

	switch dt.Class {
	case message.ClassFixedPoint:
		if dt.Signed {
			return numeric(record.Int)
		}
		return numeric(record.Uint)
	case message.ClassFloatPoint:
		return numeric(record.Float)
	case message.ClassEnum:
		if dt.IsBool() {
			return record.Field{Name: name, Kind: record.Bool, Size: 1}, nil
		}
		if dt.BaseType == nil {
			return record.Field{}, fmt.Errorf("%w: enum %q has no base type", ErrUnsupported, name)
		}
		return fieldFor(name, dt.BaseType)
	case message.ClassCompound:
		if dt.IsComplex() {
			return record.Field{Name: name, Kind: record.Complex, Size: int(dt.Size)}, nil
		}
	case message.ClassString:
		return record.Field{Name: name, Kind: record.String}, nil
	case message.ClassVarLen:
		if dt.IsVarLenString {
			return record.Field{Name: name, Kind: record.String}, nil
		}
	}
	return record.Field{}, fmt.Errorf("%w: member %q has class %d", ErrUnsupported, name, dt.Class)
}

// VarLenMembers returns the names of members stored as variable-length
// strings, keyed the way the hdf5 package keys them.
func (p *Plan) VarLenMembers() []string {
	var names []string
	for _, m := range p.members {
		if m.dt.Class == message.ClassVarLen {
			names = append(names, p.key(m))
		}
	}
	return names
}

// key is the member name of a string field in HDF5 terms; scalar datasets
// use the empty name.
func (p *Plan) key(m member) string {
	if p.scalar {
		return ""
	}
	return p.Layout.Fields[m.field].Name
}

// Pack lays the records of b out as HDF5 elements. Variable-length strings
// are returned separately by member name; their slots stay zero.
func (p *Plan) Pack(b *record.Batch) ([]byte, map[string][]string, error) {
	if !b.Layout().Equal(p.Layout) {
		return nil, nil, fmt.Errorf("%w: batch layout %s, plan layout %s", record.ErrMismatch, b.Layout(), p.Layout)
	}
	n := b.Len()
	elem := int(p.Type.Size)
	out := make([]byte, n*elem)
	strs := make(map[string][]string)
	rows := b.Rows()
	rs := p.Layout.RowSize

	for _, m := range p.members {
		f := p.Layout.Fields[m.field]
		if f.Kind == record.String {
			if m.dt.Class != message.ClassVarLen {
				return nil, nil, fmt.Errorf("%w: writing fixed-length string %q", ErrUnsupported, f.Name)
			}
			strs[p.key(m)] = b.Strings(f.Name)
			continue
		}
		for r := 0; r < n; r++ {
			copy(out[r*elem+int(m.offset):], rows[r*rs+f.Offset:r*rs+f.Offset+f.Size])
		}
	}
	return out, strs, nil
}

// Unpack turns n stored elements back into records. strs holds the resolved
// variable-length strings by member name.
func (p *Plan) Unpack(n int, data []byte, strs map[string][]string) (*record.Batch, error) {
	elem := int(p.Type.Size)
	if len(data) < n*elem {
		return nil, fmt.Errorf("%w: %d bytes for %d elements of %d bytes", record.ErrMismatch, len(data), n, elem)
	}
	rs := p.Layout.RowSize
	rows := make([]byte, n*rs)
	named := make(map[string][]string)

	for _, m := range p.members {
		f := p.Layout.Fields[m.field]
		if f.Kind != record.String {
			for r := 0; r < n; r++ {
				src := r*elem + int(m.offset)
				copy(rows[r*rs+f.Offset:r*rs+f.Offset+f.Size], data[src:src+f.Size])
			}
			continue
		}
		if m.dt.Class == message.ClassVarLen {
			vals := strs[p.key(m)]
			if vals == nil {
				vals = make([]string, n)
			}
			named[f.Name] = vals
			continue
		}
		vals := make([]string, n)
		for r := range vals {
			src := r*elem + int(m.offset)
			vals[r] = fixedString(m.dt, data[src:src+int(m.dt.Size)])
		}
		named[f.Name] = vals
	}
	return record.FromRows(p.Layout, n, rows, named)
}

// fixedString decodes a fixed-length string according to its padding.
func fixedString(dt *message.Datatype, b []byte) string {
	if dt.StringPadding == message.PadSpacePad {
		return string(bytes.TrimRight(b, " "))
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
