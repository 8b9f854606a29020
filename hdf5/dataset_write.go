package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/filter"
	"github.com/robert-malhotra/go-audata/internal/heap"
	"github.com/robert-malhotra/go-audata/internal/layout"
	"github.com/robert-malhotra/go-audata/internal/message"
	"github.com/robert-malhotra/go-audata/internal/object"
)

// CreateTable creates a one-dimensional chunked dataset at p whose elements
// have type dt, and fills it with rows. rows may be nil for an empty table.
// The table can later be grown with Resize and WriteRows.
func (f *File) CreateTable(p string, dt *message.Datatype, rows *Rows, opts ...DatasetOption) (*Dataset, error) {
	if err := f.checkWritable(); err != nil {
		return nil, err
	}
	if dt == nil || dt.Size == 0 {
		return nil, fmt.Errorf("%w: table needs a sized element type", ErrUnsupported)
	}
	o := newTableSpec(opts)
	dir, name := parentPath(p)
	if name == "" {
		return nil, fmt.Errorf("%w: %q names no dataset", ErrInvalidPath, p)
	}

	count := uint64(0)
	if rows != nil {
		count = uint64(rows.Count)
	}
	if count > o.maxDim() {
		return nil, fmt.Errorf("%d rows exceed the maximum of %d: %w", count, o.maxRows, ErrOutOfRange)
	}
	pipe := o.pipeline(dt.Size)

	space := message.NewDataspace([]uint64{count}, []uint64{o.maxDim()})
	lay := message.NewChunkedLayout([]uint32{uint32(o.chunkRows)}, dt.Size, message.ChunkIndexFixedArray)

	cw, err := f.chunkWriter(lay, dt, pipe)
	if err != nil {
		return nil, err
	}
	var stored []layout.StoredChunk
	if count > 0 {
		data, err := f.encodeRows(dt, rows)
		if err != nil {
			return nil, fmt.Errorf("encoding rows of %s: %w", p, err)
		}
		stored, err = cw.WriteChunks(layout.SplitRows(data, int(dt.Size), int(o.chunkRows)))
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", p, err)
		}
	}
	lay.ChunkIndexAddr, lay.PageBits, err = cw.WriteFixedArrayIndex(stored)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", p, err)
	}

	msgs := object.DatasetMessages(space, dt, lay)
	if pipe != nil {
		msgs = append(msgs, pipe)
	}
	for _, a := range o.attrs {
		attr, err := f.stringAttr(a.name, a.value)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, attr)
	}

	if err := f.createObject(dir, name, msgs, datasetSlack); err != nil {
		return nil, err
	}
	return &Dataset{file: f, path: joinPath(dir, name)}, nil
}

// CreateTable creates a table in the group; name may be a relative path.
func (g *Group) CreateTable(name string, dt *message.Datatype, rows *Rows, opts ...DatasetOption) (*Dataset, error) {
	return g.file.CreateTable(joinPath(g.path, name), dt, rows, opts...)
}

func (f *File) chunkWriter(lay *message.DataLayout, dt *message.Datatype, pipe *message.FilterPipeline) (*layout.ChunkWriter, error) {
	var fp *filter.Pipeline
	if pipe != nil {
		var err error
		if fp, err = filter.NewPipeline(pipe); err != nil {
			return nil, err
		}
	}
	dims := lay.ChunkDims
	if len(dims) > 1 {
		dims = dims[:len(dims)-1]
	}
	return layout.NewChunkWriter(f.writer, dims, dt.Size, fp, f.allocate), nil
}

// encodeRows returns rows.Data with every variable-length string slot
// pointing at a freshly written heap object.
func (f *File) encodeRows(dt *message.Datatype, rows *Rows) ([]byte, error) {
	size := int(dt.Size)
	if len(rows.Data) < rows.Count*size {
		return nil, fmt.Errorf("%d bytes for %d rows of %d bytes", len(rows.Data), rows.Count, size)
	}
	data := rows.Data[:rows.Count*size]
	slots := varLenSlots(dt)
	if len(slots) == 0 {
		return data, nil
	}
	data = append([]byte(nil), data...)
	offsetSize := f.writer.OffsetSize()
	for name, off := range slots {
		vals := rows.Strings[name]
		if len(vals) != rows.Count {
			return nil, fmt.Errorf("member %q has %d strings for %d rows", name, len(vals), rows.Count)
		}
		refs, err := heap.WriteVlenStrings(f.writer, f.allocate, vals)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", name, err)
		}
		for i, ref := range refs {
			heap.PutVlenRef(data[i*size+int(off):], ref, offsetSize)
		}
	}
	return data, nil
}

func (f *File) stringAttr(name, value string) (*message.Attribute, error) {
	refs, err := heap.WriteVlenStrings(f.writer, f.allocate, []string{value})
	if err != nil {
		return nil, fmt.Errorf("storing attribute %q: %w", name, err)
	}
	data := make([]byte, heap.VlenRefSize(f.writer.OffsetSize()))
	heap.PutVlenRef(data, refs[0], f.writer.OffsetSize())
	dt := message.NewVarLenStringDatatype(message.CharsetUTF8)
	dt.Size = uint32(len(data))
	return message.NewScalarAttribute(name, dt, data), nil
}

// writable returns the decoded state of a table that Resize and WriteRows
// can edit.
func (d *Dataset) writable() (*dsState, error) {
	if err := d.file.checkWritable(); err != nil {
		return nil, err
	}
	st, err := d.state()
	if err != nil {
		return nil, err
	}
	if st.node.file != d.file {
		return nil, fmt.Errorf("%w: %s lives in another file", ErrUnsupported, d.path)
	}
	if len(st.space.Dimensions) != 1 || !st.layout.IsChunked() ||
		st.layout.ChunkIndexType != message.ChunkIndexFixedArray {
		return nil, fmt.Errorf("%w: %s is not a one-dimensional chunked table", ErrUnsupported, d.path)
	}
	return st, nil
}

func (d *Dataset) storedChunks(st *dsState) ([]layout.StoredChunk, error) {
	l, err := layout.NewChunked(st.layout, st.space, st.dtype, st.filters, d.file.reader)
	if err != nil {
		return nil, err
	}
	return l.StoredChunks()
}

// Resize sets the row count of the table. New rows read as zero, and
// string members as empty, until written.
func (d *Dataset) Resize(n uint64) error {
	st, err := d.writable()
	if err != nil {
		return err
	}
	if st.space.MaxDims != nil && st.space.MaxDims[0] != Unlimited && n > st.space.MaxDims[0] {
		return fmt.Errorf("%s: %d rows exceed the maximum of %d: %w", d.path, n, st.space.MaxDims[0], ErrOutOfRange)
	}
	if n == st.space.Dimensions[0] {
		return nil
	}
	chunks, err := d.storedChunks(st)
	if err != nil {
		return fmt.Errorf("reading index of %s: %w", d.path, err)
	}
	return d.commit(st, n, fitChunks(chunks, n, uint64(st.layout.ChunkDims[0])))
}

// fitChunks trims or pads chunks to cover n rows.
func fitChunks(chunks []layout.StoredChunk, n, chunkRows uint64) []layout.StoredChunk {
	want := int((n + chunkRows - 1) / chunkRows)
	if want <= len(chunks) {
		return chunks[:want]
	}
	for len(chunks) < want {
		chunks = append(chunks, layout.StoredChunk{Addr: ^uint64(0)})
	}
	return chunks
}

// commit writes a fresh index for chunks and records n rows in the header.
func (d *Dataset) commit(st *dsState, n uint64, chunks []layout.StoredChunk) error {
	cw, err := d.file.chunkWriter(st.layout, st.dtype, st.filters)
	if err != nil {
		return err
	}
	indexAddr, pageBits, err := cw.WriteFixedArrayIndex(chunks)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", d.path, err)
	}

	space := *st.space
	space.Dimensions = []uint64{n}
	lay := *st.layout
	lay.ChunkIndexAddr, lay.PageBits = indexAddr, pageBits

	return d.file.update(d.path, func(raws []*object.RawMessage) ([]message.Message, error) {
		msgs := rawMessages(&object.Header{Raw: raws})
		for i, raw := range raws {
			switch raw.MsgType {
			case message.TypeDataspace:
				msgs[i] = &space
			case message.TypeDataLayout:
				msgs[i] = &lay
			}
		}
		return msgs, nil
	})
}

// WriteRows overwrites rows [start, start+rows.Count) of the table. The
// range must lie within the current row count; grow the table with Resize
// first to append.
func (d *Dataset) WriteRows(start uint64, rows *Rows) error {
	st, err := d.writable()
	if err != nil {
		return err
	}
	total := st.space.Dimensions[0]
	count := uint64(rows.Count)
	if start+count > total || start+count < start {
		return fmt.Errorf("%s: rows [%d, %d) of %d: %w", d.path, start, start+count, total, ErrOutOfRange)
	}
	if count == 0 {
		return nil
	}
	data, err := d.file.encodeRows(st.dtype, rows)
	if err != nil {
		return fmt.Errorf("encoding rows of %s: %w", d.path, err)
	}

	chunks, err := d.storedChunks(st)
	if err != nil {
		return fmt.Errorf("reading index of %s: %w", d.path, err)
	}
	chunkRows := uint64(st.layout.ChunkDims[0])
	chunks = fitChunks(chunks, total, chunkRows)
	l, err := layout.NewChunked(st.layout, st.space, st.dtype, st.filters, d.file.reader)
	if err != nil {
		return err
	}
	cw, err := d.file.chunkWriter(st.layout, st.dtype, st.filters)
	if err != nil {
		return err
	}

	size := uint64(st.dtype.Size)
	for c := start / chunkRows; c*chunkRows < start+count; c++ {
		lo := c * chunkRows
		hi := min(lo+chunkRows, total)
		buf := make([]byte, (hi-lo)*size)

		// Keep rows of the chunk that fall outside the write.
		if lo < start || hi > start+count {
			old, err := l.ReadSlice([]uint64{lo}, []uint64{hi - lo})
			if err != nil {
				return fmt.Errorf("reading chunk %d of %s: %w", c, d.path, err)
			}
			copy(buf, old)
		}
		from := max(lo, start)
		to := min(hi, start+count)
		copy(buf[(from-lo)*size:], data[(from-start)*size:(to-start)*size])

		sc, err := cw.WriteChunk(buf)
		if err != nil {
			return fmt.Errorf("writing chunk %d of %s: %w", c, d.path, err)
		}
		chunks[c] = sc
	}
	return d.commit(st, total, chunks)
}

// Append grows the table by rows and writes them at the end.
func (d *Dataset) Append(rows *Rows) error {
	n, err := d.NumRows()
	if err != nil {
		return err
	}
	if err := d.Resize(n + uint64(rows.Count)); err != nil {
		return err
	}
	return d.WriteRows(n, rows)
}
