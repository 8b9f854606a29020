package dtype

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/robert-malhotra/go-audata/internal/heap"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// Values decodes n elements of dt from data. Integers come back as int64 or
// uint64, floats as float64, strings as string, booleans as bool, other
// enums by member name, complex compounds as complex128, other compounds as
// map[string]any and arrays as []any.
func Values(dt *message.Datatype, data []byte, n int, cache *heap.Cache, offsetSize int) ([]any, error) {
	size := int(dt.Size)
	if len(data) < n*size {
		return nil, fmt.Errorf("%d bytes for %d elements of %d bytes", len(data), n, size)
	}
	out := make([]any, n)
	for i := range out {
		v, err := value(dt, data[i*size:(i+1)*size], cache, offsetSize)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func order(dt *message.Datatype) binary.ByteOrder {
	if dt.ByteOrder == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func value(dt *message.Datatype, p []byte, cache *heap.Cache, offsetSize int) (any, error) {
	switch dt.Class {
	case message.ClassFixedPoint:
		var u uint64
		bo := order(dt)
		switch len(p) {
		case 1:
			u = uint64(p[0])
		case 2:
			u = uint64(bo.Uint16(p))
		case 4:
			u = uint64(bo.Uint32(p))
		case 8:
			u = bo.Uint64(p)
		default:
			return nil, fmt.Errorf("%w: %d-byte integer", ErrUnsupported, len(p))
		}
		if dt.Signed {
			shift := uint(64 - 8*len(p))
			return int64(u<<shift) >> shift, nil
		}
		return u, nil

	case message.ClassFloatPoint:
		switch len(p) {
		case 4:
			return float64(math.Float32frombits(order(dt).Uint32(p))), nil
		case 8:
			return math.Float64frombits(order(dt).Uint64(p)), nil
		}
		return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, len(p))

	case message.ClassString:
		return fixedString(dt, p), nil

	case message.ClassVarLen:
		if !dt.IsVarLenString {
			return nil, fmt.Errorf("%w: variable-length sequence", ErrUnsupported)
		}
		ref, err := heap.ParseVlenRef(p, offsetSize)
		if err != nil {
			return nil, err
		}
		return cache.String(ref)

	case message.ClassEnum:
		if dt.IsBool() {
			return p[0] != 0, nil
		}
		for i, v := range dt.EnumValues {
			if bytes.Equal(v, p) {
				return dt.EnumNames[i], nil
			}
		}
		if dt.BaseType != nil {
			return value(dt.BaseType, p, cache, offsetSize)
		}
		return nil, fmt.Errorf("%w: enum value matches no member", ErrUnsupported)

	case message.ClassCompound:
		if dt.IsComplex() {
			re, err := value(dt.Members[0].Type, p[:dt.Members[1].ByteOffset], cache, offsetSize)
			if err != nil {
				return nil, err
			}
			im, err := value(dt.Members[1].Type, p[dt.Members[1].ByteOffset:], cache, offsetSize)
			if err != nil {
				return nil, err
			}
			return complex(re.(float64), im.(float64)), nil
		}
		m := make(map[string]any, len(dt.Members))
		for _, mem := range dt.Members {
			end := int(mem.ByteOffset + mem.Type.Size)
			if end > len(p) {
				return nil, fmt.Errorf("member %q overruns %d-byte compound", mem.Name, len(p))
			}
			v, err := value(mem.Type, p[mem.ByteOffset:end], cache, offsetSize)
			if err != nil {
				return nil, err
			}
			m[mem.Name] = v
		}
		return m, nil

	case message.ClassArray:
		if dt.BaseType == nil || dt.BaseType.Size == 0 {
			return nil, fmt.Errorf("%w: array without base type", ErrUnsupported)
		}
		n := len(p) / int(dt.BaseType.Size)
		vals, err := Values(dt.BaseType, p, n, cache, offsetSize)
		if err != nil {
			return nil, err
		}
		return vals, nil
	}
	return nil, fmt.Errorf("%w: class %d", ErrUnsupported, dt.Class)
}
