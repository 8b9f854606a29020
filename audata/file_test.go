package audata

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/robert-malhotra/go-audata/container"
	"github.com/robert-malhotra/go-audata/record"
)

func backends(t *testing.T) map[string]func(t *testing.T, opts ...FileOption) *File {
	return map[string]func(t *testing.T, opts ...FileOption) *File{
		"memory": func(t *testing.T, opts ...FileOption) *File {
			return memFile(t, opts...)
		},
		"hdf5": func(t *testing.T, opts ...FileOption) *File {
			opts = append([]FileOption{WithTimeReference(ref), WithLogger(zaptest.NewLogger(t))}, opts...)
			f, err := Create(filepath.Join(t.TempDir(), "test.h5"), opts...)
			require.NoError(t, err)
			t.Cleanup(func() { f.Close() })
			return f
		},
	}
}

func memFile(t *testing.T, opts ...FileOption) *File {
	t.Helper()
	opts = append([]FileOption{WithTimeReference(ref), WithLogger(zaptest.NewLogger(t))}, opts...)
	f, err := CreateIn(container.NewMemory(), opts...)
	require.NoError(t, err)
	return f
}

func everyType() *Table {
	return MustTable(
		Column{Name: "i", Values: []int32{1, -2, 3}},
		Column{Name: "u", Values: []uint8{1, 2, 255}},
		Column{Name: "r", Values: []float64{0.5, 1.5, -2}},
		Column{Name: "b", Values: []bool{true, false, true}},
		Column{Name: "c", Values: []complex128{1 + 2i, 0, -1i}},
		Column{Name: "s", Values: []string{"x", "", "zz"}},
		Column{Name: "f", Values: NewFactor([]string{"lo", "hi", "lo"}, []string{"lo", "hi"}, true)},
		Column{Name: "t", Values: []time.Time{ref, ref.Add(time.Hour), ref.Add(90 * time.Second)}},
		Column{Name: "d", Values: []time.Duration{time.Second, 0, -time.Millisecond}},
	)
}

func TestRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f := open(t)
			ds, err := f.NewDataset("g/data", everyType())
			require.NoError(t, err)
			assert.Equal(t, "/g/data", ds.Path())
			assert.Equal(t, "data", ds.Name())

			ds, err = f.Dataset("g/data")
			require.NoError(t, err)
			rows, err := ds.NumRows()
			require.NoError(t, err)
			assert.Equal(t, 3, rows)
			cols, err := ds.NumCols()
			require.NoError(t, err)
			assert.Equal(t, 9, cols)

			got, err := ds.Get(All())
			require.NoError(t, err)
			assert.Equal(t, []string{"i", "u", "r", "b", "c", "s", "f", "t", "d"}, got.Names())

			for col, want := range map[string]any{
				"i": []int32{1, -2, 3},
				"u": []uint8{1, 2, 255},
				"r": []float64{0.5, 1.5, -2},
				"b": []bool{true, false, true},
				"c": []complex128{1 + 2i, 0, -1i},
				"s": []string{"x", "", "zz"},
				"d": []time.Duration{time.Second, 0, -time.Millisecond},
			} {
				v, ok := got.Column(col)
				require.True(t, ok, col)
				assert.Equal(t, want, v, col)
			}

			fv, _ := got.Column("f")
			factor := fv.(Factor)
			assert.Equal(t, []int32{0, 1, 0}, factor.Codes)
			assert.Equal(t, []string{"lo", "hi"}, factor.Levels)
			assert.True(t, factor.Ordered)

			tv, _ := got.Column("t")
			times := tv.([]time.Time)
			require.Len(t, times, 3)
			for i, want := range []time.Time{ref, ref.Add(time.Hour), ref.Add(90 * time.Second)} {
				assert.True(t, want.Equal(times[i]), "row %d: %s", i, times[i])
			}

			metas, err := ds.Columns()
			require.NoError(t, err)
			assert.Equal(t, ColumnMeta{Name: "u", Type: TypeInteger}, metas[1])
			assert.Equal(t, ColumnMeta{Name: "i", Type: TypeInteger, Signed: true}, metas[0])
		})
	}
}

func TestUnixTimes(t *testing.T) {
	f := memFile(t, WithUnixTimes())
	ds, err := f.NewDataset("t", MustTable(Column{Name: "t", Values: []time.Time{ref.Add(time.Hour)}}))
	require.NoError(t, err)

	got, err := ds.Get(All())
	require.NoError(t, err)
	v, _ := got.Column("t")
	assert.Equal(t, []float64{1588554000}, v)

	got, err = ds.Get(All(), Datetimes(true))
	require.NoError(t, err)
	v, _ = got.Column("t")
	assert.True(t, v.([]time.Time)[0].Equal(ref.Add(time.Hour)))

	raw, err := ds.GetRaw(All())
	require.NoError(t, err)
	secs, err := raw.Column("t")
	require.NoError(t, err)
	assert.Equal(t, []float64{3600}, secs)
}

func TestTimeOverridesOnCreate(t *testing.T) {
	f := memFile(t)
	ds, err := f.NewDataset("t", MustTable(
		Column{Name: "at", Values: []float64{60}},
		Column{Name: "dur", Values: []int64{2}},
	), TimeColumns("at"), TimedeltaColumns("dur"))
	require.NoError(t, err)

	got, err := ds.Get(All())
	require.NoError(t, err)
	at, _ := got.Column("at")
	assert.True(t, at.([]time.Time)[0].Equal(ref.Add(time.Minute)))
	dur, _ := got.Column("dur")
	assert.Equal(t, []time.Duration{2 * time.Second}, dur)
}

func TestNewDatasetExists(t *testing.T) {
	f := memFile(t)
	_, err := f.NewDataset("d", MustTable(Column{Name: "x", Values: []int8{1, 2}}))
	require.NoError(t, err)

	_, err = f.NewDataset("d", MustTable(Column{Name: "x", Values: []int8{3}}))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	ds, err := f.NewDataset("d", MustTable(Column{Name: "y", Values: []string{"a"}}), Overwrite())
	require.NoError(t, err)
	rows, err := ds.NumRows()
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	names, err := f.Recurse()
	require.NoError(t, err)
	assert.Equal(t, []string{"/d"}, names)

	_, err = f.NewDataset("e", 42)
	assert.ErrorIs(t, err, ErrUnsupportedColumnType)
	_, err = f.NewDataset("e", MustTable(Column{Name: "t", Values: []struct{}{{}}}))
	assert.ErrorIs(t, err, ErrUnsupportedColumnType)
	assert.False(t, f.Exists("e"))
}

func TestCopyDataset(t *testing.T) {
	f := memFile(t)
	src, err := f.NewDataset("src", everyType())
	require.NoError(t, err)
	dst, err := f.NewDataset("copies/dst", src)
	require.NoError(t, err)

	a, err := src.Get(All())
	require.NoError(t, err)
	b, err := dst.Get(All())
	require.NoError(t, err)
	assert.Equal(t, a.Names(), b.Names())
	sa, _ := src.Schema()
	sb, _ := dst.Schema()
	assert.True(t, sa.Equal(sb))
	x, _ := a.Column("s")
	y, _ := b.Column("s")
	assert.Equal(t, x, y)
}

func TestDatasetSlicing(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f := open(t)
			ds, err := f.NewDataset("n", MustTable(Column{Name: "x", Values: []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}))
			require.NoError(t, err)

			for _, tc := range []struct {
				r    Range
				want []int64
			}{
				{Last(3), []int64{7, 8, 9}},
				{Index(-3), []int64{7}},
				{Rows(1, 8).Step(3), []int64{1, 4, 7}},
				{All().Step(4), []int64{0, 4, 8}},
				{From(8), []int64{8, 9}},
				{Upto(2), []int64{0, 1}},
				{Rows(5, 5), []int64{}},
			} {
				got, err := ds.Get(tc.r)
				require.NoError(t, err, tc.r.String())
				x, _ := got.Column("x")
				assert.Equal(t, tc.want, x, tc.r.String())
			}

			_, err = ds.Get(Index(10))
			assert.ErrorIs(t, err, ErrIndexOutOfRange)

			raw, err := ds.GetRaw(Rows(0, 2))
			require.NoError(t, err)
			assert.Equal(t, 2, raw.Len())
		})
	}
}

func TestSchemaDecodeFailure(t *testing.T) {
	f := memFile(t)
	_, err := f.NewDataset("d", MustTable(Column{Name: "x", Values: []int8{1}}))
	require.NoError(t, err)
	require.NoError(t, f.Store().SetAttr("/d", MetaAttr, "{not json"))

	_, err = f.Dataset("d")
	assert.ErrorIs(t, err, ErrSchemaDecode)
	var serr *SchemaDecodeError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "{not json", serr.Raw)

	_, err = f.Root().Group("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatasetWithoutSchema(t *testing.T) {
	f := memFile(t)
	b, err := record.FromColumns([]string{"a", "b"}, []any{[]uint16{1, 2}, []float32{0.5, 1}})
	require.NoError(t, err)
	require.NoError(t, f.Store().CreateBlob("/raw", b, container.DefaultBlobOptions()))

	ds, err := f.Dataset("raw")
	require.NoError(t, err)
	cols, err := ds.Columns()
	require.NoError(t, err)
	assert.Equal(t, []ColumnMeta{{Name: "a", Type: TypeInteger}, {Name: "b", Type: TypeReal}}, cols)
}

func TestAppend(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f := open(t)
			ds, err := f.NewDataset("d", MustTable(
				Column{Name: "a", Values: []int64{1, 2}},
				Column{Name: "f", Values: NewFactor([]string{"x", "y"}, []string{"x", "y"}, false)},
				Column{Name: "r", Values: []float64{0, 1}},
			))
			require.NoError(t, err)

			err = ds.Append(MustTable(
				Column{Name: "r", Values: []time.Duration{time.Second}},
				Column{Name: "f", Values: NewFactor([]string{"y"}, []string{"x", "y"}, false)},
				Column{Name: "a", Values: []int8{3}},
			))
			require.NoError(t, err)
			rows, _ := ds.NumRows()
			assert.Equal(t, 3, rows)

			got, err := ds.Get(All())
			require.NoError(t, err)
			a, _ := got.Column("a")
			assert.Equal(t, []int64{1, 2, 3}, a)
			fv, _ := got.Column("f")
			assert.Equal(t, []string{"x", "y", "y"}, fv.(Factor).Labels())
			r, _ := got.Column("r")
			assert.Equal(t, []float64{0, 1, 1}, r)

			err = ds.Append(MustTable(
				Column{Name: "a", Values: []int64{4}},
				Column{Name: "f", Values: NewFactor([]string{"x"}, []string{"x", "z"}, false)},
				Column{Name: "r", Values: []float64{2}},
			))
			assert.ErrorIs(t, err, ErrIncompatibleFactorLevels)

			err = ds.Append(MustTable(Column{Name: "a", Values: []int64{4}}))
			assert.ErrorIs(t, err, ErrIncompatibleSchema)

			err = ds.Append(MustTable(
				Column{Name: "a", Values: []float64{4}},
				Column{Name: "f", Values: NewFactor([]string{"x"}, []string{"x", "y"}, false)},
				Column{Name: "r", Values: []float64{2}},
			))
			assert.ErrorIs(t, err, ErrIncompatibleSchema)

			rows, _ = ds.NumRows()
			assert.Equal(t, 3, rows)

			require.NoError(t, ds.Append(MustTable(
				Column{Name: "a", Values: []int64{}},
				Column{Name: "f", Values: NewFactor(nil, []string{"x", "y"}, false)},
				Column{Name: "r", Values: []float64{}},
			)))
			rows, _ = ds.NumRows()
			assert.Equal(t, 3, rows)
		})
	}
}

func TestAppendDirect(t *testing.T) {
	f := memFile(t)
	ds, err := f.NewDataset("d", MustTable(
		Column{Name: "a", Values: []int32{1, 2}},
		Column{Name: "s", Values: []string{"p", "q"}},
	))
	require.NoError(t, err)

	raw, err := ds.GetRaw(All())
	require.NoError(t, err)
	require.NoError(t, ds.Append(raw, Direct()))
	rows, _ := ds.NumRows()
	assert.Equal(t, 4, rows)

	err = ds.Append(MustTable(Column{Name: "a", Values: []int32{1}}, Column{Name: "s", Values: []string{"r"}}), Direct())
	assert.ErrorIs(t, err, ErrInvalidAppendMode)

	other, err := record.FromColumns([]string{"a", "s"}, []any{[]int64{1}, []string{"r"}})
	require.NoError(t, err)
	assert.ErrorIs(t, ds.Append(other, Direct()), ErrInvalidAppendMode)

	require.NoError(t, ds.Append(other))
	got, err := ds.Get(All())
	require.NoError(t, err)
	s, _ := got.Column("s")
	assert.Equal(t, []string{"p", "q", "p", "q", "r"}, s)
}

func TestAppendRawBatch(t *testing.T) {
	f := memFile(t)
	ds, err := f.NewDataset("d", MustTable(
		Column{Name: "f", Values: NewFactor([]string{"lo", "hi"}, []string{"lo", "hi"}, false)},
		Column{Name: "t", Values: []time.Time{ref, ref.Add(time.Minute)}},
		Column{Name: "dt", Values: []time.Duration{time.Second, 2 * time.Second}},
	))
	require.NoError(t, err)

	raw, err := ds.GetRaw(All())
	require.NoError(t, err)
	require.NoError(t, ds.Append(raw))

	got, err := ds.Get(Last(2))
	require.NoError(t, err)
	fv, _ := got.Column("f")
	assert.Equal(t, []string{"lo", "hi"}, fv.(Factor).Labels())
	tv, _ := got.Column("t")
	assert.True(t, tv.([]time.Time)[1].Equal(ref.Add(time.Minute)))
	dv, _ := got.Column("dt")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, dv)

	// Encoded tables must still match column for column.
	err = ds.Append(MustTable(
		Column{Name: "f", Values: []int8{0}},
		Column{Name: "t", Values: []time.Time{ref}},
		Column{Name: "dt", Values: []time.Duration{0}},
	))
	assert.ErrorIs(t, err, ErrIncompatibleSchema)

	reals, err := f.NewDataset("r", MustTable(Column{Name: "x", Values: []float64{1}}))
	require.NoError(t, err)
	err = reals.Append(MustTable(Column{Name: "x", Values: []time.Time{ref}}))
	assert.ErrorIs(t, err, ErrIncompatibleSchema)
}

type brokenWrites struct {
	container.Store
}

var errDisk = errors.New("disk on fire")

func (brokenWrites) WriteRows(string, int, *record.Batch) error { return errDisk }

func TestAppendRollback(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f, err := CreateIn(brokenWrites{container.NewMemory()}, WithTimeReference(ref), WithLogger(zap.New(core)))
	require.NoError(t, err)
	ds, err := f.NewDataset("d", MustTable(Column{Name: "a", Values: []int32{1, 2}}))
	require.NoError(t, err)

	err = ds.Append(MustTable(Column{Name: "a", Values: []int32{3}}))
	assert.ErrorIs(t, err, errDisk)
	rows, err := ds.NumRows()
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Zero(t, logs.FilterMessage("cannot roll back failed append").Len())
}

func TestFileMeta(t *testing.T) {
	f := memFile(t, WithMetadata(map[string]any{"site": "north", "n": 3}))
	meta, err := f.FileMeta()
	require.NoError(t, err)
	assert.Equal(t, Version, meta["audata_pkg_version"])
	assert.Equal(t, float64(DataVersion), meta["audata_version"])
	assert.Equal(t, "2020-05-04 00:00:00.000000 +0000", meta["time_origin"])
	assert.Equal(t, "north", meta["site"])
	assert.Equal(t, float64(3), meta["n"])

	got, err := f.TimeReference()
	require.NoError(t, err)
	assert.True(t, got.Equal(ref))

	later := ref.Add(24 * time.Hour)
	require.NoError(t, f.SetTimeReference(later))
	got, err = f.TimeReference()
	require.NoError(t, err)
	assert.True(t, got.Equal(later))
	assert.ErrorIs(t, f.SetTimeReference(time.Time{}), ErrMissingTimeReference)
}

func TestTimeReferenceFallback(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := OpenIn(container.NewMemory(), WithLogger(zap.New(core)))

	got, err := f.TimeReference()
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Unix(0, 0)))
	assert.Equal(t, 1, logs.FilterMessage("no time origin found, imputing epoch time").Len())

	s := container.NewMemory()
	require.NoError(t, s.SetAttr("/", MetaAttr, `{"time_origin": 1588550400}`))
	got, err = OpenIn(s).TimeReference()
	require.NoError(t, err)
	assert.True(t, got.Equal(ref))
}

func TestUnreadableTimeOrigin(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := memFile(t, WithLogger(zap.New(core)))
	ds, err := f.NewDataset("d", MustTable(Column{Name: "x", Values: []int32{7, 8}}))
	require.NoError(t, err)
	require.NoError(t, f.Store().SetAttr("/", MetaAttr, `{"time_origin": "not a date"}`))

	got, err := f.TimeReference()
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Unix(0, 0)))
	assert.NotZero(t, logs.FilterMessage("cannot parse time origin, imputing epoch time").Len())

	tbl, err := ds.Get(All())
	require.NoError(t, err)
	x, _ := tbl.Column("x")
	assert.Equal(t, []int32{7, 8}, x)
	require.NoError(t, ds.Append(MustTable(Column{Name: "x", Values: []int32{9}})))
	_, err = f.NewDataset("e", MustTable(Column{Name: "y", Values: []int8{1}}))
	require.NoError(t, err)
}

func TestGroups(t *testing.T) {
	f := memFile(t)
	g, err := f.NewGroup("a/b")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", g.Path())
	assert.Equal(t, "b", g.Name())
	assert.True(t, f.Exists("a"))
	assert.True(t, f.Exists("a/b"))

	_, err = g.NewDataset("d", MustTable(Column{Name: "x", Values: []int8{1}}))
	require.NoError(t, err)
	_, err = f.NewDataset(".hidden/d", MustTable(Column{Name: "x", Values: []int8{1}}))
	require.NoError(t, err)
	_, err = f.NewDataset("top", MustTable(Column{Name: "x", Values: []int8{1}}))
	require.NoError(t, err)

	paths, err := f.Recurse()
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b/d", "/top"}, paths)

	a, err := f.Group("a")
	require.NoError(t, err)
	paths, err = a.Recurse()
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b/d"}, paths)

	l, err := f.List()
	require.NoError(t, err)
	assert.Equal(t, []string{MetaAttr}, l.Attributes)
	assert.Equal(t, []string{"a", ".hidden"}, l.Groups)
	assert.Equal(t, []string{"top"}, l.Datasets)

	_, err = f.Group("top")
	assert.ErrorIs(t, err, ErrInvalidParent)
	_, err = f.Dataset("a")
	assert.ErrorIs(t, err, ErrInvalidParent)
	_, err = f.Dataset("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.NewGroup("a")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	_, err = f.NewGroup("")
	assert.ErrorIs(t, err, ErrInvalidParent)

	require.NoError(t, g.SetMeta(map[string]any{"owner": "lab"}))
	meta, err := g.Meta()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"owner": "lab"}, meta)
	meta, err = a.Meta()
	require.NoError(t, err)
	assert.Empty(t, meta)

	require.NoError(t, f.Delete("a"))
	assert.False(t, f.Exists("a/b/d"))
	assert.ErrorIs(t, f.Delete("a"), ErrNotFound)
}

func TestSummaries(t *testing.T) {
	f := memFile(t)
	_, err := f.NewGroup("g")
	require.NoError(t, err)
	ds, err := f.NewDataset("d", MustTable(
		Column{Name: "n", Values: []int8{1, 2}},
		Column{Name: "u", Values: []uint16{1, 2}},
		Column{Name: "f", Values: NewFactor([]string{"b", "c"}, []string{"a-very-long-level-name", "b", "c", "d"}, false)},
		Column{Name: "r", Values: []float64{1, 2}},
	))
	require.NoError(t, err)

	assert.Equal(t, "/d: Dataset [2 rows x 4 cols]\n"+
		"  n: integer (signed)\n"+
		"  u: integer (unsigned)\n"+
		"  f: factor with 4 levels [a-very-long-level..., b, c, ...]\n"+
		"  r: real", ds.String())
	assert.Equal(t, "<ROOT>\n  [A] .meta\n  [G] g\n  [D] d", f.String())

	small, err := f.NewDataset("small", MustTable(Column{Name: "f", Values: NewFactor([]string{"x"}, nil, false)}))
	require.NoError(t, err)
	assert.Equal(t, "/small: Dataset [1 rows x 1 cols]\n  f: factor with 1 levels [x]", small.String())
}

func TestLegacyStringColumns(t *testing.T) {
	f := memFile(t)
	s := f.Store()
	ids, err := record.FromColumns([]string{"x"}, []any{[]int32{1, 2, 3}})
	require.NoError(t, err)
	require.NoError(t, s.CreateBlob("/grp/d", ids, container.DefaultBlobOptions()))
	require.NoError(t, s.SetAttr("/grp/d", MetaAttr,
		`{"columns": {"x": {"type": "integer", "signed": true}, "name": {"type": "string"}}}`))
	names, err := record.FromColumns([]string{"name"}, []any{[]string{"a", "b", "c"}})
	require.NoError(t, err)
	require.NoError(t, s.CreateBlob("/.meta/strings/grp/d/name", names, container.DefaultBlobOptions()))

	ds, err := f.Dataset("grp/d")
	require.NoError(t, err)
	schema, _ := ds.Schema()
	assert.Equal(t, []string{"x", "name"}, schema.Names())

	got, err := ds.Get(All())
	require.NoError(t, err)
	v, _ := got.Column("name")
	assert.Equal(t, []string{"a", "b", "c"}, v)

	got, err = ds.Get(Rows(0, 3).Step(2))
	require.NoError(t, err)
	v, _ = got.Column("name")
	assert.Equal(t, []string{"a", "c"}, v)

	err = ds.Append(MustTable(Column{Name: "x", Values: []int32{4}}, Column{Name: "name", Values: []string{"d"}}))
	assert.ErrorIs(t, err, ErrIncompatibleSchema)

	paths, err := f.Recurse()
	require.NoError(t, err)
	assert.Equal(t, []string{"/grp/d"}, paths)
}

func TestLegacyTimeOrigin(t *testing.T) {
	f := memFile(t)
	when := []time.Time{ref, ref.Add(90 * time.Minute)}
	_, err := f.NewDataset("d", MustTable(Column{Name: "t", Values: when}))
	require.NoError(t, err)

	s := f.Store()
	require.NoError(t, s.SetAttr("/", MetaAttr, `{}`))
	require.NoError(t, s.CreateGroup("/.meta"))
	require.NoError(t, s.SetAttr("/.meta", "data",
		`{"title": null, "time": {"origin": "2020-05-04 00:00:00.000000 +0000", "units": "seconds"}}`))

	old := OpenIn(s, WithLogger(zaptest.NewLogger(t)))
	origin, err := old.TimeReference()
	require.NoError(t, err)
	assert.True(t, origin.Equal(ref))

	ds, err := old.Dataset("d")
	require.NoError(t, err)
	got, err := ds.Get(All())
	require.NoError(t, err)
	v, _ := got.Column("t")
	require.Len(t, v, 2)
	for i, tm := range v.([]time.Time) {
		assert.True(t, tm.Equal(when[i]), "row %d: %v", i, tm)
	}
	paths, err := old.Recurse()
	require.NoError(t, err)
	assert.Equal(t, []string{"/d"}, paths)
}

func TestInvalidHandle(t *testing.T) {
	f := memFile(t)
	g, err := f.NewGroup("g")
	require.NoError(t, err)
	ds, err := f.NewDataset("d", MustTable(Column{Name: "x", Values: []int8{1}}))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = ds.Get(All())
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = ds.NumRows()
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, ds.Append(MustTable(Column{Name: "x", Values: []int8{1}})), ErrInvalidHandle)
	_, err = g.List()
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = f.NewGroup("h")
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = f.TimeReference()
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, f.Flush(), ErrInvalidHandle)
}

func TestCreateAndOpenFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.h5")
	log := WithLogger(zaptest.NewLogger(t))

	_, err := Open(path, log)
	assert.ErrorIs(t, err, ErrNotFound)

	f, err := Create(path, WithTimeReference(ref), log)
	require.NoError(t, err)
	_, err = f.NewDataset("data/all", everyType())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Create(path, log)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	f, err = Open(path, log)
	require.NoError(t, err)
	ds, err := f.Dataset("data/all")
	require.NoError(t, err)
	got, err := ds.Get(Last(1))
	require.NoError(t, err)
	s, _ := got.Column("s")
	assert.Equal(t, []string{"zz"}, s)
	origin, err := f.TimeReference()
	require.NoError(t, err)
	assert.True(t, origin.Equal(ref))

	_, err = f.NewDataset("more", everyType())
	assert.ErrorIs(t, err, ErrReadOnly)
	require.NoError(t, f.Close())

	f, err = Open(path, WithReadOnly(false), log)
	require.NoError(t, err)
	ds, err = f.Dataset("data/all")
	require.NoError(t, err)
	require.NoError(t, ds.Append(everyType()))
	rows, _ := ds.NumRows()
	assert.Equal(t, 6, rows)
	require.NoError(t, f.Close())

	f, err = Create(path, WithOverwrite(), log)
	require.NoError(t, err)
	assert.False(t, f.Exists("data"))
	require.NoError(t, f.Close())

	fresh := filepath.Join(t.TempDir(), "new.h5")
	f, err = Open(fresh, WithCreate(), log)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
