package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/go-audata/internal/dtype"
	"github.com/robert-malhotra/go-audata/internal/heap"
	"github.com/robert-malhotra/go-audata/internal/layout"
	"github.com/robert-malhotra/go-audata/internal/message"
	"github.com/robert-malhotra/go-audata/internal/object"
)

// Dataset is a handle on a dataset path. Like Group, it reads the current
// header on every call.
type Dataset struct {
	file *File
	path string
}

// Rows is a run of dataset elements. Data holds the elements as stored.
// Variable-length string members are carried in Strings by member name,
// or under "" when the element itself is a string; their slots in Data are
// ignored on write.
type Rows struct {
	Count   int
	Data    []byte
	Strings map[string][]string
}

// dsState is a dataset header decoded once.
type dsState struct {
	node    node
	space   *message.Dataspace
	dtype   *message.Datatype
	layout  *message.DataLayout
	filters *message.FilterPipeline
}

func decodeDataset(n node) (*dsState, error) {
	st := &dsState{
		node:    n,
		space:   n.header.Dataspace(),
		dtype:   n.header.Datatype(),
		layout:  n.header.DataLayout(),
		filters: n.header.FilterPipeline(),
	}
	switch {
	case st.space == nil:
		return nil, fmt.Errorf("%s: dataset missing dataspace message", n.path)
	case st.dtype == nil:
		return nil, fmt.Errorf("%s: dataset missing datatype message", n.path)
	case st.layout == nil:
		return nil, fmt.Errorf("%s: dataset missing layout message", n.path)
	}
	return st, nil
}

func newDataset(f *File, p string, header *object.Header) (*Dataset, error) {
	if _, err := decodeDataset(node{path: p, header: header}); err != nil {
		return nil, err
	}
	return &Dataset{file: f, path: p}, nil
}

func (d *Dataset) state() (*dsState, error) {
	n, err := d.file.lookup(d.path)
	if err != nil {
		return nil, err
	}
	if !n.isDataset() {
		return nil, fmt.Errorf("%s: %w", d.path, ErrNotDataset)
	}
	return decodeDataset(n)
}

// Name returns the last component of the dataset path.
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Path returns the absolute dataset path.
func (d *Dataset) Path() string {
	return d.path
}

// File returns the file the dataset belongs to.
func (d *Dataset) File() *File {
	return d.file
}

// Shape returns the current dimensions, or nil for a scalar.
func (d *Dataset) Shape() ([]uint64, error) {
	st, err := d.state()
	if err != nil {
		return nil, err
	}
	if st.space.IsScalar() {
		return nil, nil
	}
	return st.space.Dimensions, nil
}

// MaxShape returns the maximum dimensions; unlimited dimensions are
// reported as Unlimited.
func (d *Dataset) MaxShape() ([]uint64, error) {
	st, err := d.state()
	if err != nil {
		return nil, err
	}
	if st.space.MaxDims == nil {
		return st.space.Dimensions, nil
	}
	return st.space.MaxDims, nil
}

// Unlimited marks a dimension without an upper bound.
const Unlimited = message.Unlimited

// NumRows returns the length of the first dimension; a scalar has one row.
func (d *Dataset) NumRows() (uint64, error) {
	st, err := d.state()
	if err != nil {
		return 0, err
	}
	return numRows(st.space), nil
}

func numRows(space *message.Dataspace) uint64 {
	switch {
	case space.IsScalar():
		return 1
	case space.IsNull() || len(space.Dimensions) == 0:
		return 0
	default:
		return space.Dimensions[0]
	}
}

// Datatype returns the element type.
func (d *Dataset) Datatype() (*message.Datatype, error) {
	st, err := d.state()
	if err != nil {
		return nil, err
	}
	return st.dtype, nil
}

// ChunkRows returns the chunk length of a chunked dataset, or 0.
func (d *Dataset) ChunkRows() (uint64, error) {
	st, err := d.state()
	if err != nil {
		return 0, err
	}
	if !st.layout.IsChunked() || len(st.layout.ChunkDims) == 0 {
		return 0, nil
	}
	return uint64(st.layout.ChunkDims[0]), nil
}

// Filters returns the IDs of the filters applied to chunks, in order.
func (d *Dataset) Filters() ([]uint16, error) {
	st, err := d.state()
	if err != nil {
		return nil, err
	}
	if st.filters == nil {
		return nil, nil
	}
	ids := make([]uint16, len(st.filters.Filters))
	for i, f := range st.filters.Filters {
		ids[i] = f.ID
	}
	return ids, nil
}

func (d *Dataset) reader(st *dsState) (layout.Layout, error) {
	l, err := layout.New(st.layout, st.space, st.dtype, st.filters, st.node.file.reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	return l, nil
}

// ReadRaw reads every element as stored.
func (d *Dataset) ReadRaw() ([]byte, error) {
	st, err := d.state()
	if err != nil {
		return nil, err
	}
	l, err := d.reader(st)
	if err != nil {
		return nil, err
	}
	return l.Read()
}

// ReadRows reads count elements of a one-dimensional dataset starting at
// start, resolving variable-length strings.
func (d *Dataset) ReadRows(start, count uint64) (*Rows, error) {
	st, data, err := d.readSlice(start, count)
	if err != nil {
		return nil, err
	}
	rows := &Rows{Count: int(count), Data: data, Strings: make(map[string][]string)}
	if count == 0 {
		return rows, nil
	}
	if err := st.node.file.resolveStrings(st.dtype, rows); err != nil {
		return nil, fmt.Errorf("reading strings of %s: %w", d.path, err)
	}
	return rows, nil
}

// Values decodes count elements of a one-dimensional dataset starting at
// start. Elements take the Go types of Attribute.Values.
func (d *Dataset) Values(start, count uint64) ([]any, error) {
	st, data, err := d.readSlice(start, count)
	if err != nil || count == 0 {
		return nil, err
	}
	r := st.node.file.reader
	vals, err := dtype.Values(st.dtype, data, int(count), heap.NewCache(r), r.OffsetSize())
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", d.path, err)
	}
	return vals, nil
}

// readSlice reads the stored bytes of count elements from start.
func (d *Dataset) readSlice(start, count uint64) (*dsState, []byte, error) {
	st, err := d.state()
	if err != nil {
		return nil, nil, err
	}
	total := numRows(st.space)
	if start+count > total || start+count < start {
		return nil, nil, fmt.Errorf("%s: rows [%d, %d) of %d: %w", d.path, start, start+count, total, ErrOutOfRange)
	}
	if count == 0 {
		return st, nil, nil
	}
	if len(st.space.Dimensions) > 1 {
		return nil, nil, fmt.Errorf("%w: row access to a rank %d dataset", ErrUnsupported, len(st.space.Dimensions))
	}

	l, err := d.reader(st)
	if err != nil {
		return nil, nil, err
	}
	var data []byte
	if st.space.IsScalar() {
		data, err = l.Read()
	} else {
		data, err = l.ReadSlice([]uint64{start}, []uint64{count})
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", d.path, err)
	}
	return st, data, nil
}

// varLenSlots lists the variable-length string slots of an element type.
func varLenSlots(dt *message.Datatype) map[string]uint32 {
	slots := make(map[string]uint32)
	if dt.Class == message.ClassVarLen && dt.IsVarLenString {
		slots[""] = 0
		return slots
	}
	if dt.Class != message.ClassCompound {
		return slots
	}
	for _, m := range dt.Members {
		if m.Type != nil && m.Type.Class == message.ClassVarLen && m.Type.IsVarLenString {
			slots[m.Name] = m.ByteOffset
		}
	}
	return slots
}

func (f *File) resolveStrings(dt *message.Datatype, rows *Rows) error {
	slots := varLenSlots(dt)
	if len(slots) == 0 {
		return nil
	}
	cache := heap.NewCache(f.reader)
	offsetSize := f.reader.OffsetSize()
	size := int(dt.Size)
	for name, off := range slots {
		vals := make([]string, rows.Count)
		for i := range vals {
			at := i*size + int(off)
			ref, err := heap.ParseVlenRef(rows.Data[at:at+heap.VlenRefSize(offsetSize)], offsetSize)
			if err != nil {
				return err
			}
			if vals[i], err = cache.String(ref); err != nil {
				return fmt.Errorf("member %q row %d: %w", name, i, err)
			}
		}
		rows.Strings[name] = vals
	}
	return nil
}

// Attrs returns the attribute names of the dataset.
func (d *Dataset) Attrs() ([]string, error) {
	return d.file.attrNames(d.path)
}

// Attr returns the named attribute, or ErrNotFound.
func (d *Dataset) Attr(name string) (*Attribute, error) {
	return d.file.attr(d.path, name)
}

// HasAttr reports whether the dataset carries the named attribute.
func (d *Dataset) HasAttr(name string) bool {
	_, err := d.Attr(name)
	return err == nil
}

// SetAttr sets a string attribute on the dataset.
func (d *Dataset) SetAttr(name, value string) error {
	return d.file.SetAttr(d.path, name, value)
}

// DeleteAttr removes an attribute from the dataset.
func (d *Dataset) DeleteAttr(name string) error {
	return d.file.DeleteAttr(d.path, name)
}
