// Package record holds fixed-width little-endian record batches: rows of
// numeric fields packed back to back, with variable-length string fields
// kept beside the rows.
package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLayout   = errors.New("invalid record layout")
	ErrMismatch = errors.New("record layout mismatch")
	ErrRange    = errors.New("row range out of bounds")
)

// Kind is the storage class of a field.
type Kind uint8

const (
	Int Kind = iota + 1
	Uint
	Float
	Bool
	Complex
	String
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Complex:
		return "complex"
	case String:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// validSize reports whether size is a legal byte width for k.
func (k Kind) validSize(size int) bool {
	switch k {
	case Int, Uint:
		return size == 1 || size == 2 || size == 4 || size == 8
	case Float:
		return size == 4 || size == 8
	case Bool:
		return size == 1
	case Complex:
		return size == 8 || size == 16
	case String:
		return size == 0
	}
	return false
}

// Field is one column of a record. String fields have no bytes in the row.
type Field struct {
	Name   string
	Kind   Kind
	Size   int
	Offset int
}

func (f Field) String() string {
	if f.Kind == String {
		return f.Name + ":string"
	}
	return fmt.Sprintf("%s:%s%d", f.Name, f.Kind, f.Size*8)
}

// Layout is the ordered field list of a record type.
type Layout struct {
	Fields  []Field
	RowSize int
}

// NewLayout packs fields in order and assigns their offsets. Field offsets
// passed in are ignored.
func NewLayout(fields ...Field) (Layout, error) {
	seen := make(map[string]bool, len(fields))
	out := make([]Field, len(fields))
	offset := 0
	for i, f := range fields {
		if f.Name == "" {
			return Layout{}, fmt.Errorf("%w: field %d has no name", ErrLayout, i)
		}
		if seen[f.Name] {
			return Layout{}, fmt.Errorf("%w: duplicate field %q", ErrLayout, f.Name)
		}
		seen[f.Name] = true
		if !f.Kind.validSize(f.Size) {
			return Layout{}, fmt.Errorf("%w: field %q: %s cannot be %d bytes", ErrLayout, f.Name, f.Kind, f.Size)
		}
		f.Offset = offset
		offset += f.Size
		out[i] = f
	}
	return Layout{Fields: out, RowSize: offset}, nil
}

// MustLayout is NewLayout for static layouts; it panics on error.
func MustLayout(fields ...Field) Layout {
	l, err := NewLayout(fields...)
	if err != nil {
		panic(err)
	}
	return l
}

// Index returns the position of the named field, or -1.
func (l Layout) Index(name string) int {
	for i, f := range l.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the named field.
func (l Layout) Field(name string) (Field, bool) {
	i := l.Index(name)
	if i < 0 {
		return Field{}, false
	}
	return l.Fields[i], true
}

// Names returns the field names in order.
func (l Layout) Names() []string {
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = f.Name
	}
	return names
}

// Equal reports whether both layouts have the same fields in the same order.
func (l Layout) Equal(o Layout) bool {
	if len(l.Fields) != len(o.Fields) || l.RowSize != o.RowSize {
		return false
	}
	for i := range l.Fields {
		if l.Fields[i] != o.Fields[i] {
			return false
		}
	}
	return true
}

func (l Layout) String() string {
	parts := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
