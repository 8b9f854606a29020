package audata

import (
	"fmt"
	"reflect"
	"slices"
)

// ColumnType is the semantic type tag of a column.
type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeBoolean   ColumnType = "boolean"
	TypeComplex   ColumnType = "complex"
	TypeString    ColumnType = "string"
	TypeFactor    ColumnType = "factor"
	TypeTime      ColumnType = "time"
	TypeTimedelta ColumnType = "timedelta"
)

func (t ColumnType) valid() bool {
	switch t {
	case TypeInteger, TypeReal, TypeBoolean, TypeComplex, TypeString, TypeFactor, TypeTime, TypeTimedelta:
		return true
	}
	return false
}

// ColumnMeta describes one column. Signed applies to integers; Levels and
// Ordered apply to factors.
type ColumnMeta struct {
	Name    string
	Type    ColumnType
	Signed  bool
	Levels  []string
	Ordered bool
}

// Equal reports whether both describe the same column.
func (c ColumnMeta) Equal(o ColumnMeta) bool {
	return c.Name == o.Name && c.Type == o.Type && c.Signed == o.Signed &&
		c.Ordered == o.Ordered && slices.Equal(c.Levels, o.Levels)
}

// Factor is a categorical column: codes index Levels, -1 is missing.
type Factor struct {
	Codes   []int32
	Levels  []string
	Ordered bool
}

// NewFactor codes labels against levels. With nil levels the distinct labels
// are used in sorted order. Labels not among the levels become missing.
func NewFactor(labels, levels []string, ordered bool) Factor {
	if levels == nil {
		levels = slices.Clone(labels)
		slices.Sort(levels)
		levels = slices.Compact(levels)
	}
	index := make(map[string]int32, len(levels))
	for i, l := range levels {
		index[l] = int32(i)
	}
	codes := make([]int32, len(labels))
	for i, l := range labels {
		c, ok := index[l]
		if !ok {
			c = -1
		}
		codes[i] = c
	}
	return Factor{Codes: codes, Levels: slices.Clone(levels), Ordered: ordered}
}

func (f Factor) Len() int { return len(f.Codes) }

// Label returns the label of row i; ok is false for a missing value.
func (f Factor) Label(i int) (string, bool) {
	c := f.Codes[i]
	if c < 0 || int(c) >= len(f.Levels) {
		return "", false
	}
	return f.Levels[c], true
}

// Labels returns every label, with missing values as "".
func (f Factor) Labels() []string {
	out := make([]string, len(f.Codes))
	for i := range out {
		out[i], _ = f.Label(i)
	}
	return out
}

// Column is a named column of a Table. Values is a typed slice or a Factor.
type Column struct {
	Name   string
	Values any
}

// Table is an ordered set of equally long named columns.
type Table struct {
	cols []Column
	n    int
}

// NewTable checks that names are unique and non-empty and that every column
// has the same length.
func NewTable(cols ...Column) (*Table, error) {
	seen := make(map[string]bool, len(cols))
	n := -1
	for _, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: column with no name", ErrIncompatibleSchema)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrIncompatibleSchema, c.Name)
		}
		seen[c.Name] = true
		size, err := columnLen(c)
		if err != nil {
			return nil, err
		}
		if n >= 0 && size != n {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrIncompatibleSchema, c.Name, size, n)
		}
		n = size
	}
	if n < 0 {
		n = 0
	}
	return &Table{cols: slices.Clone(cols), n: n}, nil
}

// MustTable is NewTable for literals in tests and examples.
func MustTable(cols ...Column) *Table {
	t, err := NewTable(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

func columnLen(c Column) (int, error) {
	switch v := c.Values.(type) {
	case Factor:
		return v.Len(), nil
	case *Factor:
		if v == nil {
			return 0, &UnsupportedColumnTypeError{Column: c.Name, Value: c.Values}
		}
		return v.Len(), nil
	}
	rv := reflect.ValueOf(c.Values)
	if rv.Kind() != reflect.Slice {
		return 0, &UnsupportedColumnTypeError{Column: c.Name, Value: c.Values}
	}
	return rv.Len(), nil
}

func (t *Table) Len() int     { return t.n }
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Columns returns the columns in order.
func (t *Table) Columns() []Column { return slices.Clone(t.cols) }

// Column returns the values of the named column.
func (t *Table) Column(name string) (any, bool) {
	for _, c := range t.cols {
		if c.Name == name {
			return c.Values, true
		}
	}
	return nil, false
}
