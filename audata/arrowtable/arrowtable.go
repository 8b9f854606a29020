// Package arrowtable converts audata tables to and from Apache Arrow
// records.
//
// Factors map to dictionary arrays over strings with int32 indices, times to
// nanosecond UTC timestamps, durations to nanosecond durations and complex
// numbers to structs {r, i}, as h5py lays them out. Null cells are only
// allowed in factor, string and floating point columns; they read back as
// missing codes, empty strings and NaN. Times that do not fit a nanosecond
// timestamp are rejected with ErrTimeRange.
package arrowtable

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/robert-malhotra/go-audata/audata"
)

// ErrNulls reports null cells in a column that cannot hold them.
var ErrNulls = errors.New("arrowtable: column has nulls")

// ErrTimeRange reports a time that nanosecond timestamps cannot hold,
// roughly before 1678 or after 2262.
var ErrTimeRange = errors.New("arrowtable: time outside nanosecond range")

var (
	minTime = time.Unix(0, math.MinInt64)
	maxTime = time.Unix(0, math.MaxInt64)
)

var (
	timestampType = &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
	durationType  = &arrow.DurationType{Unit: arrow.Nanosecond}
)

func complexType(elem arrow.DataType) *arrow.StructType {
	return arrow.StructOf(
		arrow.Field{Name: "r", Type: elem},
		arrow.Field{Name: "i", Type: elem},
	)
}

// ToRecord builds a record holding the columns of t. A nil mem uses the Go
// allocator. The caller releases the record.
func ToRecord(t *audata.Table, mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	cols := t.Columns()
	fields := make([]arrow.Field, 0, len(cols))
	arrs := make([]arrow.Array, 0, len(cols))
	defer func() {
		for _, a := range arrs {
			a.Release()
		}
	}()
	for _, c := range cols {
		arr, err := buildArray(mem, c)
		if err != nil {
			return nil, err
		}
		arrs = append(arrs, arr)
		fields = append(fields, arrow.Field{Name: c.Name, Type: arr.DataType(), Nullable: arr.NullN() > 0})
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrs, int64(t.Len())), nil
}

type primitive interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

type valuesBuilder[T primitive] interface {
	array.Builder
	AppendValues([]T, []bool)
}

func build[T primitive](b valuesBuilder[T], vals []T) arrow.Array {
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray()
}

func widen[From ~int | ~uint, To int64 | uint64](v []From) []To {
	out := make([]To, len(v))
	for i, x := range v {
		out[i] = To(x)
	}
	return out
}

func buildArray(mem memory.Allocator, c audata.Column) (arrow.Array, error) {
	switch v := c.Values.(type) {
	case []int8:
		return build(array.NewInt8Builder(mem), v), nil
	case []int16:
		return build(array.NewInt16Builder(mem), v), nil
	case []int32:
		return build(array.NewInt32Builder(mem), v), nil
	case []int64:
		return build(array.NewInt64Builder(mem), v), nil
	case []int:
		return build(array.NewInt64Builder(mem), widen[int, int64](v)), nil
	case []uint8:
		return build(array.NewUint8Builder(mem), v), nil
	case []uint16:
		return build(array.NewUint16Builder(mem), v), nil
	case []uint32:
		return build(array.NewUint32Builder(mem), v), nil
	case []uint64:
		return build(array.NewUint64Builder(mem), v), nil
	case []uint:
		return build(array.NewUint64Builder(mem), widen[uint, uint64](v)), nil
	case []float32:
		return build(array.NewFloat32Builder(mem), v), nil
	case []float64:
		return build(array.NewFloat64Builder(mem), v), nil

	case []bool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil

	case []string:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(v, nil)
		return b.NewArray(), nil

	case []time.Time:
		b := array.NewTimestampBuilder(mem, timestampType)
		defer b.Release()
		for i, t := range v {
			if t.Before(minTime) || t.After(maxTime) {
				return nil, fmt.Errorf("%w: %s[%d] = %s", ErrTimeRange, c.Name, i, t.Format(time.RFC3339))
			}
			b.Append(arrow.Timestamp(t.UnixNano()))
		}
		return b.NewArray(), nil

	case []time.Duration:
		b := array.NewDurationBuilder(mem, durationType)
		defer b.Release()
		for _, d := range v {
			b.Append(arrow.Duration(d))
		}
		return b.NewArray(), nil

	case []complex64:
		b := array.NewStructBuilder(mem, complexType(arrow.PrimitiveTypes.Float32))
		defer b.Release()
		re := b.FieldBuilder(0).(*array.Float32Builder)
		im := b.FieldBuilder(1).(*array.Float32Builder)
		for _, z := range v {
			b.Append(true)
			re.Append(real(z))
			im.Append(imag(z))
		}
		return b.NewArray(), nil

	case []complex128:
		b := array.NewStructBuilder(mem, complexType(arrow.PrimitiveTypes.Float64))
		defer b.Release()
		re := b.FieldBuilder(0).(*array.Float64Builder)
		im := b.FieldBuilder(1).(*array.Float64Builder)
		for _, z := range v {
			b.Append(true)
			re.Append(real(z))
			im.Append(imag(z))
		}
		return b.NewArray(), nil

	case audata.Factor:
		return buildFactor(mem, v), nil
	case *audata.Factor:
		if v != nil {
			return buildFactor(mem, *v), nil
		}
	}
	return nil, &audata.UnsupportedColumnTypeError{Column: c.Name, Value: c.Values}
}

func buildFactor(mem memory.Allocator, f audata.Factor) arrow.Array {
	idx := array.NewInt32Builder(mem)
	defer idx.Release()
	for _, c := range f.Codes {
		if c < 0 || int(c) >= len(f.Levels) {
			idx.AppendNull()
			continue
		}
		idx.Append(c)
	}
	indices := idx.NewArray()
	defer indices.Release()

	lb := array.NewStringBuilder(mem)
	defer lb.Release()
	lb.AppendValues(f.Levels, nil)
	levels := lb.NewArray()
	defer levels.Release()

	dt := &arrow.DictionaryType{
		IndexType: arrow.PrimitiveTypes.Int32,
		ValueType: arrow.BinaryTypes.String,
		Ordered:   f.Ordered,
	}
	return array.NewDictionaryArray(dt, indices, levels)
}

// FromRecord copies the columns of rec into a table.
func FromRecord(rec arrow.Record) (*audata.Table, error) {
	schema := rec.Schema()
	cols := make([]audata.Column, 0, rec.NumCols())
	for i, f := range schema.Fields() {
		v, err := readArray(f.Name, rec.Column(i))
		if err != nil {
			return nil, err
		}
		cols = append(cols, audata.Column{Name: f.Name, Values: v})
	}
	return audata.NewTable(cols...)
}

func noNulls(name string, arr arrow.Array) error {
	if arr.NullN() > 0 {
		return fmt.Errorf("%w: %q has %d", ErrNulls, name, arr.NullN())
	}
	return nil
}

func copyValues[T any](name string, arr arrow.Array, vals []T) ([]T, error) {
	if err := noNulls(name, arr); err != nil {
		return nil, err
	}
	return append([]T(nil), vals...), nil
}

func readArray(name string, arr arrow.Array) (any, error) {
	switch a := arr.(type) {
	case *array.Int8:
		return copyValues(name, a, a.Int8Values())
	case *array.Int16:
		return copyValues(name, a, a.Int16Values())
	case *array.Int32:
		return copyValues(name, a, a.Int32Values())
	case *array.Int64:
		return copyValues(name, a, a.Int64Values())
	case *array.Uint8:
		return copyValues(name, a, a.Uint8Values())
	case *array.Uint16:
		return copyValues(name, a, a.Uint16Values())
	case *array.Uint32:
		return copyValues(name, a, a.Uint32Values())
	case *array.Uint64:
		return copyValues(name, a, a.Uint64Values())

	case *array.Float32:
		out := append([]float32(nil), a.Float32Values()...)
		for i := range out {
			if a.IsNull(i) {
				out[i] = float32(math.NaN())
			}
		}
		return out, nil
	case *array.Float64:
		out := append([]float64(nil), a.Float64Values()...)
		for i := range out {
			if a.IsNull(i) {
				out[i] = math.NaN()
			}
		}
		return out, nil

	case *array.Boolean:
		if err := noNulls(name, a); err != nil {
			return nil, err
		}
		out := make([]bool, a.Len())
		for i := range out {
			out[i] = a.Value(i)
		}
		return out, nil

	case *array.String:
		out := make([]string, a.Len())
		for i := range out {
			if a.IsValid(i) {
				out[i] = a.Value(i)
			}
		}
		return out, nil

	case *array.Timestamp:
		if err := noNulls(name, a); err != nil {
			return nil, err
		}
		unit := a.DataType().(*arrow.TimestampType).Unit
		out := make([]time.Time, a.Len())
		for i := range out {
			out[i] = a.Value(i).ToTime(unit)
		}
		return out, nil

	case *array.Duration:
		if err := noNulls(name, a); err != nil {
			return nil, err
		}
		mult := a.DataType().(*arrow.DurationType).Unit.Multiplier()
		out := make([]time.Duration, a.Len())
		for i := range out {
			out[i] = time.Duration(a.Value(i)) * mult
		}
		return out, nil

	case *array.Dictionary:
		return readFactor(name, a)

	case *array.Struct:
		return readComplex(name, a)
	}
	return nil, &audata.UnsupportedColumnTypeError{Column: name, Value: arr.DataType()}
}

func readFactor(name string, a *array.Dictionary) (audata.Factor, error) {
	dict, ok := a.Dictionary().(*array.String)
	if !ok {
		return audata.Factor{}, fmt.Errorf("%w: dictionary of %s", audata.ErrUnsupportedColumnType, a.Dictionary().DataType())
	}
	levels := make([]string, dict.Len())
	for i := range levels {
		levels[i] = dict.Value(i)
	}
	codes := make([]int32, a.Len())
	for i := range codes {
		if a.IsNull(i) {
			codes[i] = -1
			continue
		}
		codes[i] = int32(a.GetValueIndex(i))
	}
	ordered := a.DataType().(*arrow.DictionaryType).Ordered
	return audata.Factor{Codes: codes, Levels: levels, Ordered: ordered}, nil
}

func readComplex(name string, a *array.Struct) (any, error) {
	st := a.DataType().(*arrow.StructType)
	if st.NumFields() != 2 || st.Field(0).Name != "r" || st.Field(1).Name != "i" {
		return nil, &audata.UnsupportedColumnTypeError{Column: name, Value: st}
	}
	if err := noNulls(name, a); err != nil {
		return nil, err
	}
	switch re := a.Field(0).(type) {
	case *array.Float64:
		im, ok := a.Field(1).(*array.Float64)
		if !ok {
			break
		}
		out := make([]complex128, a.Len())
		for i := range out {
			out[i] = complex(re.Value(i), im.Value(i))
		}
		return out, nil
	case *array.Float32:
		im, ok := a.Field(1).(*array.Float32)
		if !ok {
			break
		}
		out := make([]complex64, a.Len())
		for i := range out {
			out[i] = complex(re.Value(i), im.Value(i))
		}
		return out, nil
	}
	return nil, &audata.UnsupportedColumnTypeError{Column: name, Value: st}
}

// ReadDataset reads the rows r of ds as a record, with time columns as
// timestamps.
func ReadDataset(ds *audata.Dataset, r audata.Range, mem memory.Allocator) (arrow.Record, error) {
	t, err := ds.Get(r, audata.Datetimes(true))
	if err != nil {
		return nil, err
	}
	return ToRecord(t, mem)
}
