package container

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-audata/hdf5"
	"github.com/robert-malhotra/go-audata/internal/dtype"
	"github.com/robert-malhotra/go-audata/record"
)

// HDF5 is a Store backed by an HDF5 file. Blobs are one-dimensional chunked
// datasets of compound elements; strings are variable length.
type HDF5 struct {
	f   *hdf5.File
	log *zap.Logger
}

// NewHDF5 wraps an open file. The store owns f and closes it.
func NewHDF5(f *hdf5.File, log *zap.Logger) *HDF5 {
	if log == nil {
		log = zap.NewNop()
	}
	return &HDF5{f: f, log: log.With(zap.String("file", f.Path()))}
}

// CreateHDF5 creates (or truncates) an HDF5 file.
func CreateHDF5(path string, log *zap.Logger) (*HDF5, error) {
	f, err := hdf5.Create(path)
	if err != nil {
		return nil, mapErr(err)
	}
	return NewHDF5(f, log), nil
}

// OpenHDF5 opens an existing HDF5 file. Read-write access needs a file with
// a version 2 or 3 superblock.
func OpenHDF5(path string, readOnly bool, log *zap.Logger) (*HDF5, error) {
	open := hdf5.OpenReadWrite
	if readOnly {
		open = hdf5.Open
	}
	f, err := open(path)
	if err != nil {
		return nil, mapErr(err)
	}
	return NewHDF5(f, log), nil
}

// File returns the underlying HDF5 file.
func (s *HDF5) File() *hdf5.File { return s.f }

// mapErr translates hdf5 errors to container sentinels, keeping the cause.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range []struct{ from, to error }{
		{hdf5.ErrNotFound, ErrNotFound},
		{os.ErrNotExist, ErrNotFound},
		{hdf5.ErrExists, ErrExists},
		{hdf5.ErrNotGroup, ErrNotGroup},
		{hdf5.ErrNotDataset, ErrNotBlob},
		{hdf5.ErrInvalidPath, ErrInvalidPath},
		{hdf5.ErrClosed, ErrClosed},
		{hdf5.ErrReadOnly, ErrReadOnly},
		{hdf5.ErrOutOfRange, ErrRange},
	} {
		if errors.Is(err, m.from) && !errors.Is(err, m.to) {
			return fmt.Errorf("%w: %w", m.to, err)
		}
	}
	return err
}

func (s *HDF5) CreateGroup(p string) error {
	_, err := s.f.CreateGroup(Clean(p))
	return mapErr(err)
}

// ensureParent creates the groups above p.
func (s *HDF5) ensureParent(p string) error {
	dir, _ := Split(p)
	if dir == "/" || s.f.Exists(dir) {
		return nil
	}
	s.log.Debug("creating parent groups", zap.String("path", dir))
	_, err := s.f.CreateGroup(dir)
	return err
}

func (s *HDF5) CreateBlob(p string, b *record.Batch, opts BlobOptions) error {
	p = Clean(p)
	if err := s.ensureParent(p); err != nil {
		return mapErr(err)
	}
	plan := dtype.ForLayout(b.Layout(), s.f.OffsetSize())
	data, strs, err := plan.Pack(b)
	if err != nil {
		return err
	}

	dsOpts := []hdf5.DatasetOption{
		hdf5.WithCompression(opts.CompressionLevel),
		hdf5.WithMaxDims(uint64(opts.MaxRows)),
	}
	if opts.ChunkRows > 0 {
		dsOpts = append(dsOpts, hdf5.WithChunks(uint64(opts.ChunkRows)))
	}
	if opts.Shuffle {
		dsOpts = append(dsOpts, hdf5.WithShuffle())
	}
	if opts.Fletcher32 {
		dsOpts = append(dsOpts, hdf5.WithFletcher32())
	}
	for _, k := range sortedKeys(opts.Attrs) {
		dsOpts = append(dsOpts, hdf5.WithAttribute(k, opts.Attrs[k]))
	}

	rows := &hdf5.Rows{Count: b.Len(), Data: data, Strings: strs}
	if _, err := s.f.CreateTable(p, plan.Type, rows, dsOpts...); err != nil {
		return mapErr(err)
	}
	s.log.Debug("created blob",
		zap.String("path", p),
		zap.Int("rows", b.Len()),
		zap.Stringer("layout", b.Layout()),
		zap.Int("chunk_rows", opts.ChunkRows),
	)
	return nil
}

func (s *HDF5) dataset(p string) (*hdf5.Dataset, *dtype.Plan, error) {
	ds, err := s.f.OpenDataset(Clean(p))
	if err != nil {
		return nil, nil, mapErr(err)
	}
	dt, err := ds.Datatype()
	if err != nil {
		return nil, nil, err
	}
	plan, err := dtype.FromType(dt)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", p, err)
	}
	return ds, plan, nil
}

func (s *HDF5) Resize(p string, n int) error {
	ds, err := s.f.OpenDataset(Clean(p))
	if err != nil {
		return mapErr(err)
	}
	if n < 0 {
		return fmt.Errorf("%w: resize %s to %d", ErrRange, p, n)
	}
	s.log.Debug("resizing blob", zap.String("path", p), zap.Int("rows", n))
	return mapErr(ds.Resize(uint64(n)))
}

func (s *HDF5) WriteRows(p string, start int, b *record.Batch) error {
	ds, plan, err := s.dataset(p)
	if err != nil {
		return err
	}
	if start < 0 {
		return fmt.Errorf("%w: write at %d", ErrRange, start)
	}
	src, err := b.Convert(plan.Layout)
	if err != nil {
		return err
	}
	data, strs, err := plan.Pack(src)
	if err != nil {
		return err
	}
	s.log.Debug("writing rows", zap.String("path", p), zap.Int("start", start), zap.Int("rows", b.Len()))
	return mapErr(ds.WriteRows(uint64(start), &hdf5.Rows{Count: src.Len(), Data: data, Strings: strs}))
}

func (s *HDF5) ReadRows(p string, start, stop int) (*record.Batch, error) {
	ds, plan, err := s.dataset(p)
	if err != nil {
		return nil, err
	}
	if start < 0 || start > stop {
		return nil, fmt.Errorf("%w: read [%d, %d)", ErrRange, start, stop)
	}
	rows, err := ds.ReadRows(uint64(start), uint64(stop-start))
	if err != nil {
		return nil, mapErr(err)
	}
	return plan.Unpack(rows.Count, rows.Data, rows.Strings)
}

func (s *HDF5) Blob(p string) (BlobInfo, error) {
	ds, plan, err := s.dataset(p)
	if err != nil {
		return BlobInfo{}, err
	}
	n, err := ds.NumRows()
	if err != nil {
		return BlobInfo{}, err
	}
	return BlobInfo{Layout: plan.Layout, Len: int(n)}, nil
}

func (s *HDF5) Attr(p, name string) (string, error) {
	a, err := s.f.Attr(Clean(p), name)
	if err != nil {
		return "", mapErr(err)
	}
	return a.String()
}

func (s *HDF5) Attrs(p string) ([]string, error) {
	names, err := s.f.Attrs(Clean(p))
	return names, mapErr(err)
}

func (s *HDF5) SetAttr(p, name, value string) error {
	return mapErr(s.f.SetAttr(Clean(p), name, value))
}

func (s *HDF5) Delete(p string) error {
	s.log.Debug("deleting", zap.String("path", p))
	return mapErr(s.f.Delete(Clean(p)))
}

func (s *HDF5) Stat(p string) (Kind, error) {
	k, err := s.f.Stat(Clean(p))
	if err != nil {
		return 0, mapErr(err)
	}
	if k == hdf5.KindDataset {
		return KindBlob, nil
	}
	return KindGroup, nil
}

func (s *HDF5) Children(p string) ([]Child, error) {
	members, err := s.f.Children(Clean(p))
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]Child, len(members))
	for i, m := range members {
		out[i] = Child{Name: m.Name, Kind: KindGroup}
		if m.Kind == hdf5.KindDataset {
			out[i].Kind = KindBlob
		}
	}
	return out, nil
}

func (s *HDF5) Flush() error {
	return mapErr(s.f.Flush())
}

func (s *HDF5) Close() error {
	s.log.Debug("closing")
	return mapErr(s.f.Close())
}

var _ Store = (*HDF5)(nil)
