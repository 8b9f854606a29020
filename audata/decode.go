package audata

import (
	"fmt"
	"slices"
	"time"

	"github.com/robert-malhotra/go-audata/record"
)

// Decode turns stored records back into a table, one column per schema
// entry in schema order. Every schema column must be a field of b.
func Decode(b *record.Batch, schema *Schema, opts CodecOptions) (*Table, error) {
	return decode(b, schema, opts, nil)
}

// decode is Decode with string columns supplied from outside the batch.
func decode(b *record.Batch, schema *Schema, opts CodecOptions, extra map[string][]string) (*Table, error) {
	cols := make([]Column, 0, schema.Len())
	layout := b.Layout()
	for _, meta := range schema.cols {
		i := layout.Index(meta.Name)
		if i < 0 {
			vals, ok := extra[meta.Name]
			if !ok || meta.Type != TypeString {
				return nil, fmt.Errorf("%w: column %q is not stored", ErrIncompatibleSchema, meta.Name)
			}
			cols = append(cols, Column{Name: meta.Name, Values: slices.Clone(vals)})
			continue
		}
		v, err := decodeColumn(b, i, meta, opts)
		if err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: meta.Name, Values: v})
	}
	return NewTable(cols...)
}

func decodeColumn(b *record.Batch, i int, meta ColumnMeta, opts CodecOptions) (any, error) {
	f := b.Layout().Fields[i]
	n := b.Len()
	switch meta.Type {
	case TypeFactor:
		if f.Kind != record.Int && f.Kind != record.Uint {
			return nil, fmt.Errorf("%w: factor %q stored as %s", ErrIncompatibleSchema, meta.Name, f.Kind)
		}
		codes := make([]int32, n)
		for r := range codes {
			c := b.Int(i, r)
			if c < 0 || c >= int64(len(meta.Levels)) {
				c = -1
			}
			codes[r] = int32(c)
		}
		return Factor{Codes: codes, Levels: slices.Clone(meta.Levels), Ordered: meta.Ordered}, nil

	case TypeTime:
		if !opts.hasReference() {
			return nil, fmt.Errorf("column %q: %w", meta.Name, ErrMissingTimeReference)
		}
		secs, err := offsets(b, i, meta)
		if err != nil {
			return nil, err
		}
		if opts.UnixTimes {
			base := unixSeconds(opts.TimeReference)
			for r := range secs {
				secs[r] += base
			}
			return secs, nil
		}
		out := make([]time.Time, n)
		for r, s := range secs {
			out[r] = addSeconds(opts.TimeReference, s)
		}
		return out, nil

	case TypeTimedelta:
		secs, err := offsets(b, i, meta)
		if err != nil {
			return nil, err
		}
		out := make([]time.Duration, n)
		for r, s := range secs {
			out[r] = durationSeconds(s)
		}
		return out, nil
	}
	return b.ColumnAt(i), nil
}

func offsets(b *record.Batch, i int, meta ColumnMeta) ([]float64, error) {
	f := b.Layout().Fields[i]
	switch f.Kind {
	case record.Float, record.Int, record.Uint:
	default:
		return nil, fmt.Errorf("%w: %s column %q stored as %s", ErrIncompatibleSchema, meta.Type, meta.Name, f.Kind)
	}
	out := make([]float64, b.Len())
	for r := range out {
		out[r] = cellFloat(b, i, r, f.Kind)
	}
	return out, nil
}
