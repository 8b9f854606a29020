package audata

import (
	"fmt"
	"slices"
	"time"

	"github.com/robert-malhotra/go-audata/record"
)

// Encode classifies every column of t and packs the table into one record
// batch. Factors become integer codes, times become seconds from
// opts.TimeReference and durations become seconds. t is left untouched.
func Encode(t *Table, opts CodecOptions) (*Schema, *record.Batch, error) {
	schema := NewSchema()
	names := make([]string, 0, t.NumCols())
	cols := make([]any, 0, t.NumCols())

	for _, c := range t.cols {
		meta, err := Classify(c.Name, c.Values, opts)
		if err != nil {
			return nil, nil, err
		}
		stored, err := encodeColumn(meta, c.Values, opts)
		if err != nil {
			return nil, nil, err
		}
		schema.Set(meta)
		names = append(names, c.Name)
		cols = append(cols, stored)
	}

	b, err := record.FromColumns(names, cols)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrIncompatibleSchema, err)
	}
	return schema, b, nil
}

func encodeColumn(meta ColumnMeta, values any, opts CodecOptions) (any, error) {
	switch meta.Type {
	case TypeFactor:
		if f, ok := values.(*Factor); ok {
			return factorCodes(*f), nil
		}
		return factorCodes(values.(Factor)), nil
	case TypeTime:
		if ts, ok := values.([]time.Time); ok {
			out := make([]float64, len(ts))
			for i, t := range ts {
				out[i] = offsetSeconds(t, opts.TimeReference)
			}
			return out, nil
		}
		return floats(values), nil
	case TypeTimedelta:
		if ds, ok := values.([]time.Duration); ok {
			out := make([]float64, len(ds))
			for i, d := range ds {
				out[i] = d.Seconds()
			}
			return out, nil
		}
		return floats(values), nil
	case TypeString:
		return slices.Clone(values.([]string)), nil
	}
	return values, nil
}

// EncodeBatch derives the schema of a raw record batch. Fields named as time
// or time-delta overrides are converted to float64 seconds; everything else
// is copied as stored.
func EncodeBatch(b *record.Batch, opts CodecOptions) (*Schema, *record.Batch, error) {
	schema := InferSchema(b.Layout())
	fields := slices.Clone(b.Layout().Fields)
	changed := false
	for i, f := range fields {
		t, ok := opts.override(f.Name)
		if !ok || f.Kind == record.String || f.Kind == record.Bool || f.Kind == record.Complex {
			continue
		}
		schema.Set(ColumnMeta{Name: f.Name, Type: t})
		if f.Kind != record.Float || f.Size != 8 {
			fields[i] = record.Field{Name: f.Name, Kind: record.Float, Size: 8}
			changed = true
		}
	}
	if !changed {
		return schema, b.Clone(), nil
	}

	layout, err := record.NewLayout(fields...)
	if err != nil {
		return nil, nil, err
	}
	out := record.New(layout, b.Len())
	for i, f := range b.Layout().Fields {
		for r := 0; r < b.Len(); r++ {
			switch layout.Fields[i].Kind {
			case record.Float:
				out.SetFloat(i, r, cellFloat(b, i, r, f.Kind))
			case record.Int:
				out.SetInt(i, r, b.Int(i, r))
			case record.Uint:
				out.SetUint(i, r, b.Uint(i, r))
			case record.Bool:
				out.SetBool(i, r, b.Bool(i, r))
			case record.Complex:
				out.SetComplex(i, r, b.Complex(i, r))
			case record.String:
				out.SetStr(i, r, b.Str(i, r))
			}
		}
	}
	return schema, out, nil
}

func cellFloat(b *record.Batch, field, row int, kind record.Kind) float64 {
	switch kind {
	case record.Int:
		return float64(b.Int(field, row))
	case record.Uint:
		return float64(b.Uint(field, row))
	default:
		return b.Float(field, row)
	}
}
