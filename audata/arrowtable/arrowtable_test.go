package arrowtable

import (
	"math"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-audata/audata"
	"github.com/robert-malhotra/go-audata/container"
)

var ref = time.Date(2020, 5, 4, 0, 0, 0, 0, time.UTC)

func TestRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	in := audata.MustTable(
		audata.Column{Name: "i", Values: []int16{-1, 2}},
		audata.Column{Name: "u", Values: []uint32{1, 4000000000}},
		audata.Column{Name: "r", Values: []float32{0.5, -1}},
		audata.Column{Name: "b", Values: []bool{true, false}},
		audata.Column{Name: "s", Values: []string{"a", ""}},
		audata.Column{Name: "t", Values: []time.Time{ref, ref.Add(time.Second)}},
		audata.Column{Name: "d", Values: []time.Duration{time.Millisecond, -time.Hour}},
		audata.Column{Name: "z", Values: []complex128{1 + 2i, -3i}},
		audata.Column{Name: "f", Values: audata.Factor{Codes: []int32{1, -1}, Levels: []string{"lo", "hi"}, Ordered: true}},
	)
	rec, err := ToRecord(in, mem)
	require.NoError(t, err)
	defer rec.Release()

	assert.EqualValues(t, 2, rec.NumRows())
	assert.Equal(t, arrow.INT16, rec.Schema().Field(0).Type.ID())
	assert.Equal(t, arrow.TIMESTAMP, rec.Schema().Field(5).Type.ID())
	assert.Equal(t, arrow.DICTIONARY, rec.Schema().Field(8).Type.ID())
	assert.True(t, rec.Schema().Field(8).Nullable)

	out, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, in.Names(), out.Names())
	for _, name := range []string{"i", "u", "r", "b", "s", "d", "z", "f"} {
		want, _ := in.Column(name)
		got, _ := out.Column(name)
		assert.Equal(t, want, got, name)
	}
	tv, _ := out.Column("t")
	times := tv.([]time.Time)
	assert.True(t, times[0].Equal(ref))
	assert.True(t, times[1].Equal(ref.Add(time.Second)))
}

func TestPlatformInts(t *testing.T) {
	rec, err := ToRecord(audata.MustTable(audata.Column{Name: "n", Values: []int{7}}), nil)
	require.NoError(t, err)
	defer rec.Release()
	out, err := FromRecord(rec)
	require.NoError(t, err)
	n, _ := out.Column("n")
	assert.Equal(t, []int64{7}, n)
}

func TestUnsupported(t *testing.T) {
	_, err := ToRecord(audata.MustTable(audata.Column{Name: "x", Values: []struct{}{{}}}), nil)
	assert.ErrorIs(t, err, audata.ErrUnsupportedColumnType)
}

func TestTimeRange(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	for _, bad := range []time.Time{
		time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		in := audata.MustTable(
			audata.Column{Name: "n", Values: []int8{1, 2}},
			audata.Column{Name: "t", Values: []time.Time{ref, bad}},
		)
		_, err := ToRecord(in, mem)
		assert.ErrorIs(t, err, ErrTimeRange)
		assert.ErrorContains(t, err, "t[1]")
	}

	edge := time.Unix(0, math.MinInt64)
	rec, err := ToRecord(audata.MustTable(audata.Column{Name: "t", Values: []time.Time{edge}}), mem)
	require.NoError(t, err)
	defer rec.Release()
	out, err := FromRecord(rec)
	require.NoError(t, err)
	tv, _ := out.Column("t")
	assert.True(t, tv.([]time.Time)[0].Equal(edge))
}

func TestNulls(t *testing.T) {
	mem := memory.NewGoAllocator()

	fb := array.NewFloat64Builder(mem)
	defer fb.Release()
	fb.AppendValues([]float64{1, 0}, []bool{true, false})
	floats := fb.NewArray()
	defer floats.Release()

	ib := array.NewInt32Builder(mem)
	defer ib.Release()
	ib.AppendValues([]int32{1, 0}, []bool{true, false})
	ints := ib.NewArray()
	defer ints.Release()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
	rec := array.NewRecord(schema, []arrow.Array{floats}, 2)
	defer rec.Release()
	out, err := FromRecord(rec)
	require.NoError(t, err)
	x, _ := out.Column("x")
	assert.Equal(t, 1.0, x.([]float64)[0])
	assert.True(t, math.IsNaN(x.([]float64)[1]))

	schema = arrow.NewSchema([]arrow.Field{
		{Name: "n", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	}, nil)
	bad := array.NewRecord(schema, []arrow.Array{ints}, 2)
	defer bad.Release()
	_, err = FromRecord(bad)
	assert.ErrorIs(t, err, ErrNulls)
}

func TestReadDataset(t *testing.T) {
	f, err := audata.CreateIn(container.NewMemory(), audata.WithTimeReference(ref), audata.WithUnixTimes())
	require.NoError(t, err)
	ds, err := f.NewDataset("d", audata.MustTable(
		audata.Column{Name: "t", Values: []time.Time{ref, ref.Add(time.Hour), ref.Add(2 * time.Hour)}},
		audata.Column{Name: "k", Values: audata.NewFactor([]string{"a", "b", "a"}, nil, false)},
	))
	require.NoError(t, err)

	rec, err := ReadDataset(ds, audata.Last(2), nil)
	require.NoError(t, err)
	defer rec.Release()
	assert.EqualValues(t, 2, rec.NumRows())

	ts := rec.Column(0).(*array.Timestamp)
	assert.True(t, ts.Value(0).ToTime(arrow.Nanosecond).Equal(ref.Add(time.Hour)))
	dict := rec.Column(1).(*array.Dictionary)
	assert.Equal(t, 0, dict.GetValueIndex(1))
}
