package audata

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-audata/container"
	"github.com/robert-malhotra/go-audata/record"
)

// Dataset is a stored table: a record blob plus the schema in its .meta
// attribute.
type Dataset struct {
	file   *File
	path   string
	schema *Schema
	// legacy lists string columns kept in the side table instead of the
	// record blob.
	legacy []string
}

func openDataset(f *File, p string) (*Dataset, error) {
	if err := f.valid(); err != nil {
		return nil, err
	}
	kind, err := f.store.Stat(p)
	if err != nil {
		return nil, storeErr(err)
	}
	if kind != container.KindBlob {
		return nil, fmt.Errorf("%w: %s is a group", ErrInvalidParent, p)
	}
	d := &Dataset{file: f, path: p}
	return d, d.load()
}

// load reads the layout and the persisted schema, and merges the schema over
// what the layout alone implies.
func (d *Dataset) load() error {
	info, err := d.file.store.Blob(d.path)
	if err != nil {
		return storeErr(err)
	}
	schema := InferSchema(info.Layout)
	text, err := d.file.store.Attr(d.path, MetaAttr)
	switch {
	case errors.Is(err, container.ErrNotFound):
		d.file.log.Debug("dataset has no schema, inferring from layout", zap.String("path", d.path))
	case err != nil:
		return storeErr(err)
	default:
		persisted, err := ParseSchema(text)
		if err != nil {
			return err
		}
		schema = schema.Merge(persisted)
	}

	d.legacy = nil
	for _, c := range schema.cols {
		if info.Layout.Index(c.Name) < 0 {
			if c.Type != TypeString {
				return fmt.Errorf("%w: %s: column %q has no stored field", ErrIncompatibleSchema, d.path, c.Name)
			}
			d.legacy = append(d.legacy, c.Name)
		}
	}
	d.schema = schema
	return nil
}

func createDataset(f *File, p string, value any, o *datasetOptions) (*Dataset, error) {
	if err := f.valid(); err != nil {
		return nil, err
	}
	codec, err := f.codecOptions()
	if err != nil {
		return nil, err
	}
	codec.TimeColumns = o.timeColumns
	codec.TimedeltaColumns = o.timedeltaColumns

	var (
		schema *Schema
		batch  *record.Batch
	)
	switch v := value.(type) {
	case *Table:
		schema, batch, err = Encode(v, codec)
	case *record.Batch:
		schema, batch, err = EncodeBatch(v, codec)
	case *Dataset:
		var t *Table
		t, err = v.Get(All(), Datetimes(true))
		if err == nil {
			schema, batch, err = Encode(t, codec)
		}
	default:
		err = fmt.Errorf("%w: cannot store a %T as a dataset", ErrUnsupportedColumnType, value)
	}
	if err != nil {
		return nil, err
	}

	if _, err := f.store.Stat(p); err == nil {
		if !o.overwrite {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, p)
		}
		if err := f.store.Delete(p); err != nil {
			return nil, storeErr(err)
		}
	}

	text, err := schema.Text()
	if err != nil {
		return nil, err
	}
	opts := f.opts.blob
	if o.chunkRows > 0 {
		opts.ChunkRows = o.chunkRows
	}
	opts.Attrs = map[string]string{MetaAttr: text}
	if err := f.store.CreateBlob(p, batch, opts); err != nil {
		return nil, storeErr(err)
	}
	f.log.Debug("created dataset",
		zap.String("path", p),
		zap.Int("rows", batch.Len()),
		zap.Strings("columns", schema.Names()),
	)
	return &Dataset{file: f, path: p, schema: schema}, nil
}

func (d *Dataset) valid() error {
	if d == nil || d.file == nil {
		return ErrInvalidHandle
	}
	return d.file.valid()
}

func (d *Dataset) Path() string { return d.path }

func (d *Dataset) Name() string {
	_, name := container.Split(d.path)
	return name
}

// File returns the file the dataset belongs to.
func (d *Dataset) File() *File { return d.file }

// NumRows is the number of stored rows.
func (d *Dataset) NumRows() (int, error) {
	if err := d.valid(); err != nil {
		return 0, err
	}
	info, err := d.file.store.Blob(d.path)
	if err != nil {
		return 0, storeErr(err)
	}
	return info.Len, nil
}

// NumCols is the number of schema columns.
func (d *Dataset) NumCols() (int, error) {
	if err := d.valid(); err != nil {
		return 0, err
	}
	return d.schema.Len(), nil
}

// Columns returns the column metadata in order.
func (d *Dataset) Columns() ([]ColumnMeta, error) {
	if err := d.valid(); err != nil {
		return nil, err
	}
	return d.schema.Columns(), nil
}

// Schema returns the effective schema: the stored document over what the
// record layout implies.
func (d *Dataset) Schema() (*Schema, error) {
	if err := d.valid(); err != nil {
		return nil, err
	}
	return NewSchema(d.schema.cols...), nil
}

// Layout returns the stored record layout.
func (d *Dataset) Layout() (record.Layout, error) {
	if err := d.valid(); err != nil {
		return record.Layout{}, err
	}
	info, err := d.file.store.Blob(d.path)
	if err != nil {
		return record.Layout{}, storeErr(err)
	}
	return info.Layout, nil
}

// Meta returns the dataset's raw .meta document.
func (d *Dataset) Meta() (map[string]any, error) {
	return readMeta(d.file, d.path)
}

// SetMeta replaces the .meta document and reloads the schema from it.
func (d *Dataset) SetMeta(meta map[string]any) error {
	if err := d.valid(); err != nil {
		return err
	}
	if err := writeMeta(d.file, d.path, meta); err != nil {
		return err
	}
	return d.load()
}

// read fetches the records of r.
func (d *Dataset) read(r Range) (*record.Batch, span, error) {
	info, err := d.file.store.Blob(d.path)
	if err != nil {
		return nil, span{}, storeErr(err)
	}
	sp, err := r.resolve(info.Len)
	if err != nil {
		return nil, span{}, err
	}
	b, err := d.file.store.ReadRows(d.path, sp.start, sp.end())
	if err != nil {
		return nil, span{}, storeErr(err)
	}
	if sp.step > 1 {
		if b, err = b.Take(sp.indices()); err != nil {
			return nil, span{}, err
		}
	}
	return b, sp, nil
}

// GetRaw returns the stored records of r without decoding.
func (d *Dataset) GetRaw(r Range) (*record.Batch, error) {
	if err := d.valid(); err != nil {
		return nil, err
	}
	b, _, err := d.read(r)
	return b, err
}

// Get reads and decodes the rows of r.
func (d *Dataset) Get(r Range, opts ...ReadOption) (*Table, error) {
	if err := d.valid(); err != nil {
		return nil, err
	}
	ro := &readOptions{datetimes: !d.file.opts.unixTimes}
	for _, opt := range opts {
		opt(ro)
	}
	codec, err := d.file.codecOptions()
	if err != nil {
		return nil, err
	}
	codec.UnixTimes = !ro.datetimes

	b, sp, err := d.read(r)
	if err != nil {
		return nil, err
	}
	var extra map[string][]string
	if len(d.legacy) > 0 {
		extra = make(map[string][]string, len(d.legacy))
		for _, col := range d.legacy {
			vals, err := readSideTable(d.file, d.path, col, sp)
			if err != nil {
				return nil, err
			}
			extra[col] = vals
		}
	}
	return decode(b, d.schema, codec, extra)
}

// Append adds rows at the end of the dataset. value is a *Table or a
// *record.Batch; with Direct it must be a *record.Batch in the stored
// layout. If writing the rows fails the dataset is shrunk back.
func (d *Dataset) Append(value any, opts ...AppendOption) error {
	if err := d.valid(); err != nil {
		return err
	}
	ao := &appendOptions{}
	for _, opt := range opts {
		opt.applyAppend(ao)
	}
	info, err := d.file.store.Blob(d.path)
	if err != nil {
		return storeErr(err)
	}

	var batch *record.Batch
	if ao.direct {
		b, ok := value.(*record.Batch)
		if !ok {
			return fmt.Errorf("%w: direct append needs a *record.Batch, got %T", ErrInvalidAppendMode, value)
		}
		if !b.Layout().Equal(info.Layout) {
			return fmt.Errorf("%w: layout %s, dataset %s", ErrInvalidAppendMode, b.Layout(), info.Layout)
		}
		batch = b
	} else {
		if len(d.legacy) > 0 {
			return fmt.Errorf("%w: %s keeps strings in a side table", ErrIncompatibleSchema, d.path)
		}
		codec, err := d.file.codecOptions()
		if err != nil {
			return err
		}
		codec.TimeColumns = ao.timeColumns
		codec.TimedeltaColumns = ao.timedeltaColumns

		var schema *Schema
		switch v := value.(type) {
		case *Table:
			schema, batch, err = Encode(v, codec)
		case *record.Batch:
			schema, batch, err = EncodeBatch(v, codec)
		default:
			err = fmt.Errorf("%w: cannot append a %T", ErrUnsupportedColumnType, value)
		}
		if err != nil {
			return err
		}
		_, raw := value.(*record.Batch)
		if batch, err = d.conform(schema, batch, info.Layout, raw); err != nil {
			return err
		}
	}

	if batch.Len() == 0 {
		return nil
	}
	return d.writeTail(info.Len, batch)
}

func (d *Dataset) writeTail(n int, batch *record.Batch) error {
	s := d.file.store
	if err := s.Resize(d.path, n+batch.Len()); err != nil {
		return storeErr(err)
	}
	if err := s.WriteRows(d.path, n, batch); err != nil {
		if rerr := s.Resize(d.path, n); rerr != nil {
			d.file.log.Warn("cannot roll back failed append",
				zap.String("path", d.path), zap.Int("rows", n), zap.Error(rerr))
		}
		return storeErr(err)
	}
	d.file.log.Debug("appended rows", zap.String("path", d.path), zap.Int("rows", batch.Len()))
	return nil
}

// conform checks an encoded append against the dataset schema and returns
// its records in the stored layout. Raw batches carry factor codes and time
// offsets as plain numbers.
func (d *Dataset) conform(in *Schema, b *record.Batch, layout record.Layout, raw bool) (*record.Batch, error) {
	names := layout.Names()
	if in.Len() != len(names) {
		return nil, fmt.Errorf("%w: appending %d columns to %d", ErrIncompatibleSchema, in.Len(), len(names))
	}
	cols := make([]any, len(names))
	for i, name := range names {
		got, ok := in.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: column %q missing from appended data", ErrIncompatibleSchema, name)
		}
		want, _ := d.schema.Column(name)
		if err := compatible(want, got, raw); err != nil {
			return nil, err
		}
		cols[i] = b.ColumnAt(b.Layout().Index(name))
	}
	ordered, err := record.FromColumns(names, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatibleSchema, err)
	}
	out, err := ordered.Convert(layout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatibleSchema, err)
	}
	return out, nil
}

func compatible(want, got ColumnMeta, raw bool) error {
	switch {
	case want.Type == TypeFactor && got.Type == TypeFactor:
		if !slices.Equal(want.Levels, got.Levels) {
			return fmt.Errorf("%w: column %q has levels %v, dataset has %v",
				ErrIncompatibleFactorLevels, want.Name, got.Levels, want.Levels)
		}
		return nil
	case want.Type == got.Type:
		return nil
	case raw && want.Type == TypeFactor && got.Type == TypeInteger:
		return nil
	case raw && (want.Type == TypeTime || want.Type == TypeTimedelta) && got.Type == TypeReal:
		return nil
	}
	return fmt.Errorf("%w: column %q is %s, appended %s", ErrIncompatibleSchema, want.Name, want.Type, got.Type)
}

// String summarizes the dataset, one line per column.
func (d *Dataset) String() string {
	rows, err := d.NumRows()
	if err != nil {
		return fmt.Sprintf("%s: %v", d.path, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: Dataset [%d rows x %d cols]", d.path, rows, d.schema.Len())
	for _, c := range d.schema.cols {
		fmt.Fprintf(&b, "\n  %s: %s", c.Name, describe(c))
	}
	return b.String()
}

func describe(c ColumnMeta) string {
	switch c.Type {
	case TypeInteger:
		if c.Signed {
			return "integer (signed)"
		}
		return "integer (unsigned)"
	case TypeFactor:
		shown := c.Levels[:min(3, len(c.Levels))]
		labels := make([]string, len(shown))
		for i, l := range shown {
			labels[i] = truncate(l, 20)
		}
		list := strings.Join(labels, ", ")
		if len(c.Levels) > 3 {
			list += ", ..."
		}
		return fmt.Sprintf("factor with %d levels [%s]", len(c.Levels), list)
	}
	return string(c.Type)
}
