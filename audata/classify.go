package audata

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// CodecOptions carry what the codec needs beyond the values themselves.
type CodecOptions struct {
	// TimeReference anchors time columns. The zero time means none.
	TimeReference time.Time
	// TimeColumns and TimedeltaColumns name numeric columns that already
	// hold offset seconds.
	TimeColumns      []string
	TimedeltaColumns []string
	// UnixTimes decodes time columns as Unix seconds instead of time.Time.
	UnixTimes bool
}

func (o CodecOptions) hasReference() bool { return !o.TimeReference.IsZero() }

func (o CodecOptions) override(name string) (ColumnType, bool) {
	if slices.Contains(o.TimeColumns, name) {
		return TypeTime, true
	}
	if slices.Contains(o.TimedeltaColumns, name) {
		return TypeTimedelta, true
	}
	return "", false
}

// Classify returns the column metadata of a column's values. Strings win
// over everything, then factors; a numeric column named in TimeColumns or
// TimedeltaColumns is taken as offset seconds ahead of its native kind.
func Classify(name string, values any, opts CodecOptions) (ColumnMeta, error) {
	meta := ColumnMeta{Name: name}
	switch v := values.(type) {
	case []string:
		meta.Type = TypeString
		return meta, nil
	case Factor:
		meta.Type, meta.Levels, meta.Ordered = TypeFactor, slices.Clone(v.Levels), v.Ordered
		return meta, nil
	case *Factor:
		if v != nil {
			meta.Type, meta.Levels, meta.Ordered = TypeFactor, slices.Clone(v.Levels), v.Ordered
			return meta, nil
		}
	case []time.Time:
		if !opts.hasReference() {
			return meta, fmt.Errorf("column %q: %w", name, ErrMissingTimeReference)
		}
		meta.Type = TypeTime
		return meta, nil
	case []time.Duration:
		meta.Type = TypeTimedelta
		return meta, nil
	}

	if t, ok := opts.override(name); ok && numeric(values) {
		meta.Type = t
		return meta, nil
	}

	switch values.(type) {
	case []int, []int8, []int16, []int32, []int64:
		meta.Type, meta.Signed = TypeInteger, true
	case []uint, []uint8, []uint16, []uint32, []uint64:
		meta.Type = TypeInteger
	case []bool:
		meta.Type = TypeBoolean
	case []float32, []float64:
		meta.Type = TypeReal
	case []complex64, []complex128:
		meta.Type = TypeComplex
	default:
		return meta, &UnsupportedColumnTypeError{Column: name, Value: values}
	}
	return meta, nil
}

func numeric(values any) bool {
	switch values.(type) {
	case []int, []int8, []int16, []int32, []int64,
		[]uint, []uint8, []uint16, []uint32, []uint64,
		[]float32, []float64:
		return true
	}
	return false
}

// floats converts a numeric slice to float64.
func floats(values any) []float64 {
	switch v := values.(type) {
	case []int:
		return convertSlice(v)
	case []int8:
		return convertSlice(v)
	case []int16:
		return convertSlice(v)
	case []int32:
		return convertSlice(v)
	case []int64:
		return convertSlice(v)
	case []uint:
		return convertSlice(v)
	case []uint8:
		return convertSlice(v)
	case []uint16:
		return convertSlice(v)
	case []uint32:
		return convertSlice(v)
	case []uint64:
		return convertSlice(v)
	case []float32:
		return convertSlice(v)
	case []float64:
		return slices.Clone(v)
	}
	return nil
}

type number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func convertSlice[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// offsetSeconds is t - ref in seconds, without the range limit of
// time.Duration.
func offsetSeconds(t, ref time.Time) float64 {
	return float64(t.Unix()-ref.Unix()) + float64(t.Nanosecond()-ref.Nanosecond())/1e9
}

// addSeconds is ref + s, in ref's location.
func addSeconds(ref time.Time, s float64) time.Time {
	whole, frac := math.Modf(s)
	return ref.Add(time.Duration(whole) * time.Second).Add(time.Duration(math.Round(frac * 1e9)))
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

func durationSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * 1e9))
}

// codeWidth is the narrowest signed code type for n levels, as pandas picks
// it.
func codeWidth(n int) int {
	switch {
	case n < math.MaxInt8:
		return 1
	case n < math.MaxInt16:
		return 2
	default:
		return 4
	}
}

// factorCodes returns the codes of f in the narrowest signed width.
func factorCodes(f Factor) any {
	codes := make([]int32, len(f.Codes))
	for i, c := range f.Codes {
		if c < 0 || int(c) >= len(f.Levels) {
			c = -1
		}
		codes[i] = c
	}
	switch codeWidth(len(f.Levels)) {
	case 1:
		out := make([]int8, len(codes))
		for i, c := range codes {
			out[i] = int8(c)
		}
		return out
	case 2:
		out := make([]int16, len(codes))
		for i, c := range codes {
			out[i] = int16(c)
		}
		return out
	default:
		return codes
	}
}
