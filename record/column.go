package record

import (
	"encoding/binary"
	"fmt"
	"math"
)

func (b *Batch) cell(field, row int) []byte {
	f := b.layout.Fields[field]
	off := row*b.layout.RowSize + f.Offset
	return b.rows[off : off+f.Size]
}

func getUint(p []byte) uint64 {
	switch len(p) {
	case 1:
		return uint64(p[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(p))
	case 4:
		return uint64(binary.LittleEndian.Uint32(p))
	default:
		return binary.LittleEndian.Uint64(p)
	}
}

func putUint(p []byte, v uint64) {
	switch len(p) {
	case 1:
		p[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(p, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(p, uint32(v))
	default:
		binary.LittleEndian.PutUint64(p, v)
	}
}

func signExtend(v uint64, size int) int64 {
	shift := uint(64 - 8*size)
	return int64(v<<shift) >> shift
}

func getFloat(p []byte) float64 {
	if len(p) == 4 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(p))
}

func putFloat(p []byte, v float64) {
	if len(p) == 4 {
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
		return
	}
	binary.LittleEndian.PutUint64(p, math.Float64bits(v))
}

// Int reads an integer field as int64.
func (b *Batch) Int(field, row int) int64 {
	p := b.cell(field, row)
	if b.layout.Fields[field].Kind == Int {
		return signExtend(getUint(p), len(p))
	}
	return int64(getUint(p))
}

// Uint reads an integer field as uint64.
func (b *Batch) Uint(field, row int) uint64 {
	p := b.cell(field, row)
	if b.layout.Fields[field].Kind == Int {
		return uint64(signExtend(getUint(p), len(p)))
	}
	return getUint(p)
}

func (b *Batch) Float(field, row int) float64 { return getFloat(b.cell(field, row)) }
func (b *Batch) Bool(field, row int) bool     { return b.cell(field, row)[0] != 0 }

func (b *Batch) Complex(field, row int) complex128 {
	p := b.cell(field, row)
	half := len(p) / 2
	return complex(getFloat(p[:half]), getFloat(p[half:]))
}

func (b *Batch) Str(field, row int) string { return b.strings[field][row] }

func (b *Batch) SetInt(field, row int, v int64)   { putUint(b.cell(field, row), uint64(v)) }
func (b *Batch) SetUint(field, row int, v uint64) { putUint(b.cell(field, row), v) }
func (b *Batch) SetFloat(field, row int, v float64) {
	putFloat(b.cell(field, row), v)
}

func (b *Batch) SetBool(field, row int, v bool) {
	var x byte
	if v {
		x = 1
	}
	b.cell(field, row)[0] = x
}

func (b *Batch) SetComplex(field, row int, v complex128) {
	p := b.cell(field, row)
	half := len(p) / 2
	putFloat(p[:half], real(v))
	putFloat(p[half:], imag(v))
}

func (b *Batch) SetStr(field, row int, v string) { b.strings[field][row] = v }

// FieldFor describes a typed Go slice as a field. int and uint are 64-bit.
func FieldFor(name string, col any) (Field, int, error) {
	switch c := col.(type) {
	case []int8:
		return Field{Name: name, Kind: Int, Size: 1}, len(c), nil
	case []int16:
		return Field{Name: name, Kind: Int, Size: 2}, len(c), nil
	case []int32:
		return Field{Name: name, Kind: Int, Size: 4}, len(c), nil
	case []int64:
		return Field{Name: name, Kind: Int, Size: 8}, len(c), nil
	case []int:
		return Field{Name: name, Kind: Int, Size: 8}, len(c), nil
	case []uint8:
		return Field{Name: name, Kind: Uint, Size: 1}, len(c), nil
	case []uint16:
		return Field{Name: name, Kind: Uint, Size: 2}, len(c), nil
	case []uint32:
		return Field{Name: name, Kind: Uint, Size: 4}, len(c), nil
	case []uint64:
		return Field{Name: name, Kind: Uint, Size: 8}, len(c), nil
	case []uint:
		return Field{Name: name, Kind: Uint, Size: 8}, len(c), nil
	case []float32:
		return Field{Name: name, Kind: Float, Size: 4}, len(c), nil
	case []float64:
		return Field{Name: name, Kind: Float, Size: 8}, len(c), nil
	case []bool:
		return Field{Name: name, Kind: Bool, Size: 1}, len(c), nil
	case []complex64:
		return Field{Name: name, Kind: Complex, Size: 8}, len(c), nil
	case []complex128:
		return Field{Name: name, Kind: Complex, Size: 16}, len(c), nil
	case []string:
		return Field{Name: name, Kind: String}, len(c), nil
	default:
		return Field{}, 0, fmt.Errorf("%w: field %q: unsupported column type %T", ErrLayout, name, col)
	}
}

// FromColumns builds a batch from equally long typed slices.
func FromColumns(names []string, cols []any) (*Batch, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrLayout, len(names), len(cols))
	}
	fields := make([]Field, len(cols))
	n := -1
	for i, col := range cols {
		f, size, err := FieldFor(names[i], col)
		if err != nil {
			return nil, err
		}
		if n >= 0 && size != n {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrMismatch, names[i], size, n)
		}
		n = size
		fields[i] = f
	}
	if n < 0 {
		n = 0
	}
	layout, err := NewLayout(fields...)
	if err != nil {
		return nil, err
	}
	b := New(layout, n)
	for i, col := range cols {
		if err := b.setColumn(i, col); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Batch) setColumn(i int, col any) error {
	switch c := col.(type) {
	case []int8:
		for r, v := range c {
			b.SetInt(i, r, int64(v))
		}
	case []int16:
		for r, v := range c {
			b.SetInt(i, r, int64(v))
		}
	case []int32:
		for r, v := range c {
			b.SetInt(i, r, int64(v))
		}
	case []int64:
		for r, v := range c {
			b.SetInt(i, r, v)
		}
	case []int:
		for r, v := range c {
			b.SetInt(i, r, int64(v))
		}
	case []uint8:
		for r, v := range c {
			b.SetUint(i, r, uint64(v))
		}
	case []uint16:
		for r, v := range c {
			b.SetUint(i, r, uint64(v))
		}
	case []uint32:
		for r, v := range c {
			b.SetUint(i, r, uint64(v))
		}
	case []uint64:
		for r, v := range c {
			b.SetUint(i, r, v)
		}
	case []uint:
		for r, v := range c {
			b.SetUint(i, r, uint64(v))
		}
	case []float32:
		for r, v := range c {
			b.SetFloat(i, r, float64(v))
		}
	case []float64:
		for r, v := range c {
			b.SetFloat(i, r, v)
		}
	case []bool:
		for r, v := range c {
			b.SetBool(i, r, v)
		}
	case []complex64:
		for r, v := range c {
			b.SetComplex(i, r, complex128(v))
		}
	case []complex128:
		for r, v := range c {
			b.SetComplex(i, r, v)
		}
	case []string:
		copy(b.strings[i], c)
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrLayout, col)
	}
	return nil
}

// Column returns a field as a typed slice matching its kind and width:
// []int8..[]int64, []uint8..[]uint64, []float32, []float64, []bool,
// []complex64, []complex128 or []string.
func (b *Batch) Column(name string) (any, error) {
	i := b.layout.Index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: no field %q", ErrMismatch, name)
	}
	return b.ColumnAt(i), nil
}

// ColumnAt is Column by field position.
func (b *Batch) ColumnAt(i int) any {
	f := b.layout.Fields[i]
	n := b.n
	switch f.Kind {
	case Int:
		switch f.Size {
		case 1:
			out := make([]int8, n)
			for r := range out {
				out[r] = int8(b.Int(i, r))
			}
			return out
		case 2:
			out := make([]int16, n)
			for r := range out {
				out[r] = int16(b.Int(i, r))
			}
			return out
		case 4:
			out := make([]int32, n)
			for r := range out {
				out[r] = int32(b.Int(i, r))
			}
			return out
		default:
			out := make([]int64, n)
			for r := range out {
				out[r] = b.Int(i, r)
			}
			return out
		}
	case Uint:
		switch f.Size {
		case 1:
			out := make([]uint8, n)
			for r := range out {
				out[r] = uint8(b.Uint(i, r))
			}
			return out
		case 2:
			out := make([]uint16, n)
			for r := range out {
				out[r] = uint16(b.Uint(i, r))
			}
			return out
		case 4:
			out := make([]uint32, n)
			for r := range out {
				out[r] = uint32(b.Uint(i, r))
			}
			return out
		default:
			out := make([]uint64, n)
			for r := range out {
				out[r] = b.Uint(i, r)
			}
			return out
		}
	case Float:
		if f.Size == 4 {
			out := make([]float32, n)
			for r := range out {
				out[r] = float32(b.Float(i, r))
			}
			return out
		}
		out := make([]float64, n)
		for r := range out {
			out[r] = b.Float(i, r)
		}
		return out
	case Bool:
		out := make([]bool, n)
		for r := range out {
			out[r] = b.Bool(i, r)
		}
		return out
	case Complex:
		if f.Size == 8 {
			out := make([]complex64, n)
			for r := range out {
				out[r] = complex64(b.Complex(i, r))
			}
			return out
		}
		out := make([]complex128, n)
		for r := range out {
			out[r] = b.Complex(i, r)
		}
		return out
	default:
		return append([]string(nil), b.strings[i]...)
	}
}
