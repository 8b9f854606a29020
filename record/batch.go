package record

import (
	"fmt"
)

// Batch is n records of one layout.
type Batch struct {
	layout  Layout
	n       int
	rows    []byte
	strings [][]string // by field index; nil for fixed-width fields
}

// New returns a zeroed batch of n records.
func New(layout Layout, n int) *Batch {
	b := &Batch{
		layout:  layout,
		n:       n,
		rows:    make([]byte, n*layout.RowSize),
		strings: make([][]string, len(layout.Fields)),
	}
	for i, f := range layout.Fields {
		if f.Kind == String {
			b.strings[i] = make([]string, n)
		}
	}
	return b
}

// FromRows wraps packed rows and string columns. rows must hold exactly n
// records and strs must have n values for every string field. The batch
// owns rows afterwards.
func FromRows(layout Layout, n int, rows []byte, strs map[string][]string) (*Batch, error) {
	if len(rows) != n*layout.RowSize {
		return nil, fmt.Errorf("%w: %d bytes for %d rows of %d bytes", ErrMismatch, len(rows), n, layout.RowSize)
	}
	b := &Batch{layout: layout, n: n, rows: rows, strings: make([][]string, len(layout.Fields))}
	for i, f := range layout.Fields {
		if f.Kind != String {
			continue
		}
		vals := strs[f.Name]
		if vals == nil {
			vals = make([]string, n)
		}
		if len(vals) != n {
			return nil, fmt.Errorf("%w: string field %q has %d values, want %d", ErrMismatch, f.Name, len(vals), n)
		}
		b.strings[i] = vals
	}
	return b, nil
}

func (b *Batch) Layout() Layout { return b.layout }
func (b *Batch) Len() int       { return b.n }

// Rows returns the packed fixed-width part of the records.
func (b *Batch) Rows() []byte { return b.rows }

// Strings returns the values of a string field, or nil.
func (b *Batch) Strings(name string) []string {
	i := b.layout.Index(name)
	if i < 0 {
		return nil
	}
	return b.strings[i]
}

// StringMap returns every string field by name.
func (b *Batch) StringMap() map[string][]string {
	m := make(map[string][]string)
	for i, f := range b.layout.Fields {
		if f.Kind == String {
			m[f.Name] = b.strings[i]
		}
	}
	return m
}

// Clone returns a deep copy.
func (b *Batch) Clone() *Batch {
	c := &Batch{
		layout:  b.layout,
		n:       b.n,
		rows:    append([]byte(nil), b.rows...),
		strings: make([][]string, len(b.strings)),
	}
	for i, s := range b.strings {
		if s != nil {
			c.strings[i] = append([]string(nil), s...)
		}
	}
	return c
}

// Slice copies records [start, stop).
func (b *Batch) Slice(start, stop int) (*Batch, error) {
	if start < 0 || stop > b.n || start > stop {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrRange, start, stop, b.n)
	}
	rs := b.layout.RowSize
	out := &Batch{
		layout:  b.layout,
		n:       stop - start,
		rows:    append([]byte(nil), b.rows[start*rs:stop*rs]...),
		strings: make([][]string, len(b.strings)),
	}
	for i, s := range b.strings {
		if s != nil {
			out.strings[i] = append([]string(nil), s[start:stop]...)
		}
	}
	return out, nil
}

// Take copies the records at the given positions, in order.
func (b *Batch) Take(idx []int) (*Batch, error) {
	out := New(b.layout, len(idx))
	rs := b.layout.RowSize
	for j, i := range idx {
		if i < 0 || i >= b.n {
			return nil, fmt.Errorf("%w: row %d of %d", ErrRange, i, b.n)
		}
		copy(out.rows[j*rs:(j+1)*rs], b.rows[i*rs:(i+1)*rs])
		for f, s := range b.strings {
			if s != nil {
				out.strings[f][j] = s[i]
			}
		}
	}
	return out, nil
}

// Append adds the records of o, which must share b's layout.
func (b *Batch) Append(o *Batch) error {
	if !b.layout.Equal(o.layout) {
		return fmt.Errorf("%w: appending %s to %s", ErrMismatch, o.layout, b.layout)
	}
	b.rows = append(b.rows, o.rows...)
	for i, s := range o.strings {
		if s != nil {
			b.strings[i] = append(b.strings[i], s...)
		}
	}
	b.n += o.n
	return nil
}

// Concat joins batches of one layout into a new batch.
func Concat(batches ...*Batch) (*Batch, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrMismatch)
	}
	out := batches[0].Clone()
	for _, b := range batches[1:] {
		if err := out.Append(b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Convert returns the records in layout to. Both layouts must name the same
// fields in the same order; numeric fields may change width, and integer
// fields may switch signedness.
func (b *Batch) Convert(to Layout) (*Batch, error) {
	if b.layout.Equal(to) {
		return b.Clone(), nil
	}
	if len(to.Fields) != len(b.layout.Fields) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrMismatch, b.layout, to)
	}
	out := New(to, b.n)
	for i, src := range b.layout.Fields {
		dst := to.Fields[i]
		if src.Name != dst.Name || !convertible(src.Kind, dst.Kind) {
			return nil, fmt.Errorf("%w: cannot convert %s to %s", ErrMismatch, src, dst)
		}
		for r := 0; r < b.n; r++ {
			switch dst.Kind {
			case Int:
				out.SetInt(i, r, b.Int(i, r))
			case Uint:
				out.SetUint(i, r, b.Uint(i, r))
			case Float:
				out.SetFloat(i, r, b.Float(i, r))
			case Bool:
				out.SetBool(i, r, b.Bool(i, r))
			case Complex:
				out.SetComplex(i, r, b.Complex(i, r))
			case String:
				out.strings[i][r] = b.strings[i][r]
			}
		}
	}
	return out, nil
}

func convertible(from, to Kind) bool {
	if from == to {
		return true
	}
	return (from == Int || from == Uint) && (to == Int || to == Uint)
}
