package hdf5

import (
	"errors"
	"fmt"
	"os"

	"github.com/robert-malhotra/go-audata/internal/alloc"
	binpkg "github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/object"
	"github.com/robert-malhotra/go-audata/internal/superblock"
)

// File is an HDF5 file opened by this package. Files opened for writing
// append new objects past the end of the existing data.
type File struct {
	path       string
	file       *os.File
	reader     *binpkg.Reader
	superblock *superblock.Superblock
	closed     bool

	writable  bool
	writer    *binpkg.Writer
	allocator *alloc.Allocator
	// baseAddr is the end of the file when it was opened. Space above it
	// was allocated in this session.
	baseAddr uint64

	// externals caches files reached through external links, by link name.
	externals map[string]*File
}

// Open opens an HDF5 file read-only.
func Open(path string) (*File, error) { return open(path, false) }

// OpenReadWrite opens an existing file for modification. Only version 2
// and 3 superblocks can be rewritten.
func OpenReadWrite(path string) (*File, error) { return open(path, true) }

func open(path string, write bool) (*File, error) {
	flag := os.O_RDONLY
	if write {
		flag = os.O_RDWR
	}
	osFile, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	f, err := attach(osFile, path, write)
	if err != nil {
		osFile.Close()
		return nil, err
	}
	return f, nil
}

// attach reads the superblock of an open file and checks that its root
// group header decodes.
func attach(osFile *os.File, path string, write bool) (*File, error) {
	sb, err := superblock.Read(osFile)
	switch {
	case errors.Is(err, superblock.ErrNotHDF5):
		return nil, fmt.Errorf("%s: %w", path, ErrNotHDF5)
	case err != nil:
		return nil, fmt.Errorf("reading superblock: %w", err)
	case write && sb.Version < 2:
		return nil, fmt.Errorf("%w: writing to a version %d superblock", ErrUnsupported, sb.Version)
	}

	cfg := sb.ReaderConfig()
	f := &File{
		path:       path,
		file:       osFile,
		reader:     binpkg.NewReader(osFile, cfg),
		superblock: sb,
	}
	if write {
		f.writable = true
		f.writer = binpkg.NewWriter(osFile, cfg)
		f.allocator = alloc.New(sb.EOFAddress)
		f.baseAddr = sb.EOFAddress
	}
	if _, err := f.Root(); err != nil {
		return nil, fmt.Errorf("opening root group: %w", err)
	}
	return f, nil
}

// Create starts a new file at path, replacing any file already there. New
// files get a version 3 superblock and version 2 object headers.
func Create(path string, opts ...FileOption) (*File, error) {
	cfg := binpkg.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	osFile, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	writer := binpkg.NewWriter(osFile, cfg)

	sb := superblock.New()
	sb.OffsetSize = uint8(cfg.OffsetSize)
	sb.LengthSize = uint8(cfg.LengthSize)

	// Root group header sits right after the superblock.
	sbSize := sb.Size()
	sb.RootGroupAddress = uint64(sbSize)
	rootMessages := object.GroupMessages()
	minChunk := object.Slack(writer, rootMessages, groupSlack)
	headerSize := object.Size(writer, rootMessages, minChunk)
	sb.EOFAddress = uint64(sbSize + headerSize)

	fail := func(err error) (*File, error) {
		osFile.Close()
		os.Remove(path)
		return nil, err
	}

	if _, err := sb.Write(writer); err != nil {
		return fail(err)
	}
	if _, err := object.Write(writer.At(int64(sb.RootGroupAddress)), rootMessages, minChunk); err != nil {
		return fail(err)
	}

	return &File{
		path:       path,
		file:       osFile,
		reader:     binpkg.NewReader(osFile, cfg),
		superblock: sb,
		writable:   true,
		writer:     writer,
		allocator:  alloc.New(sb.EOFAddress),
		baseAddr:   sb.EOFAddress,
	}, nil
}

// Close flushes pending changes and closes the file.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	for _, ext := range f.externals {
		ext.Close()
	}

	if f.writable {
		if err := f.flush(); err != nil {
			f.file.Close()
			return err
		}
	}
	return f.file.Close()
}

// Flush writes the superblock and syncs the file to disk.
func (f *File) Flush() error {
	if f.closed {
		return ErrClosed
	}
	if !f.writable {
		return nil
	}
	return f.flush()
}

func (f *File) flush() error {
	if err := f.writeSuperblock(); err != nil {
		return err
	}
	return f.file.Sync()
}

// writeSuperblock records the current EOF and root address.
func (f *File) writeSuperblock() error {
	f.superblock.EOFAddress = f.allocator.EOFAddr()
	_, err := f.superblock.Write(f.writer.At(0))
	return err
}

// allocate reserves space at the end of the file and returns its address.
func (f *File) allocate(size int64) uint64 {
	return f.allocator.Alloc(uint64(size))
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Version returns the superblock version.
func (f *File) Version() int {
	return int(f.superblock.Version)
}

// OffsetSize is the byte width of file addresses.
func (f *File) OffsetSize() int {
	return int(f.superblock.OffsetSize)
}

// Writable reports whether the file was opened for writing.
func (f *File) Writable() bool {
	return f.writable
}

// Root returns the root group as currently stored.
func (f *File) Root() (*Group, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if _, err := object.Read(f.reader, f.superblock.RootGroupAddress); err != nil {
		return nil, fmt.Errorf("reading root header: %w", err)
	}
	return &Group{file: f, path: "/"}, nil
}

// OpenGroup opens a group by absolute path.
func (f *File) OpenGroup(p string) (*Group, error) {
	n, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.isDataset() {
		return nil, fmt.Errorf("%s: %w", p, ErrNotGroup)
	}
	return &Group{file: f, path: CleanPath(p)}, nil
}

// OpenDataset opens a dataset by absolute path.
func (f *File) OpenDataset(p string) (*Dataset, error) {
	n, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	if !n.isDataset() {
		return nil, fmt.Errorf("%s: %w", p, ErrNotDataset)
	}
	return newDataset(f, CleanPath(p), n.header)
}

// Stat reports what kind of object lives at p.
func (f *File) Stat(p string) (Kind, error) {
	n, err := f.lookup(p)
	if err != nil {
		return 0, err
	}
	if n.isDataset() {
		return KindDataset, nil
	}
	return KindGroup, nil
}

// Exists reports whether an object lives at p.
func (f *File) Exists(p string) bool {
	_, err := f.lookup(p)
	return err == nil
}

func (f *File) checkWritable() error {
	if f.closed {
		return ErrClosed
	}
	if !f.writable {
		return ErrReadOnly
	}
	return nil
}
