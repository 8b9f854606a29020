// Package container is the storage collaborator of the audata codec: a tree
// of groups and record blobs, each carrying string attributes.
//
// Two stores are provided. HDF5 keeps the tree in an HDF5 file; Memory keeps
// it in process and backs the codec tests.
package container

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/robert-malhotra/go-audata/record"
)

var (
	ErrNotFound    = errors.New("container: not found")
	ErrExists      = errors.New("container: already exists")
	ErrNotGroup    = errors.New("container: not a group")
	ErrNotBlob     = errors.New("container: not a blob")
	ErrInvalidPath = errors.New("container: invalid path")
	ErrClosed      = errors.New("container: closed")
	ErrReadOnly    = errors.New("container: read-only")
	ErrRange       = errors.New("container: row range out of bounds")
)

// Kind tells groups and blobs apart.
type Kind int

const (
	KindGroup Kind = iota
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Child is one member of a group, in link order.
type Child struct {
	Name string
	Kind Kind
}

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Layout record.Layout
	Len    int
}

// BlobOptions configure a new blob. Zero values pick store defaults.
type BlobOptions struct {
	ChunkRows int
	// CompressionLevel is the deflate level; 0 disables compression.
	CompressionLevel int
	Shuffle          bool
	Fletcher32       bool
	// MaxRows bounds growth; 0 means unlimited.
	MaxRows int
	Attrs   map[string]string
}

// DefaultBlobOptions matches the h5py settings audata files are written
// with: gzip, shuffle and fletcher32 on a resizable chunked dataset.
func DefaultBlobOptions() BlobOptions {
	return BlobOptions{ChunkRows: 1024, CompressionLevel: 4, Shuffle: true, Fletcher32: true}
}

// Store is a hierarchical container of groups and record blobs.
//
// Paths are absolute and slash separated. CreateGroup and CreateBlob create
// missing parent groups.
type Store interface {
	CreateGroup(p string) error
	CreateBlob(p string, b *record.Batch, opts BlobOptions) error
	// Resize grows or shrinks a blob; new rows are zero.
	Resize(p string, n int) error
	// WriteRows overwrites rows starting at start. b is converted to the
	// blob layout when the fields agree by name and kind.
	WriteRows(p string, start int, b *record.Batch) error
	// ReadRows reads rows [start, stop).
	ReadRows(p string, start, stop int) (*record.Batch, error)
	Blob(p string) (BlobInfo, error)

	Attr(p, name string) (string, error)
	Attrs(p string) ([]string, error)
	SetAttr(p, name, value string) error

	Delete(p string) error
	Stat(p string) (Kind, error)
	Children(p string) ([]Child, error)

	Flush() error
	Close() error
}

// Clean returns p as an absolute path without a trailing slash.
func Clean(p string) string {
	return path.Clean("/" + p)
}

// Split returns the parent path and base name of p.
func Split(p string) (dir, name string) {
	p = Clean(p)
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/", p[1:]
	}
	return p[:i], p[i+1:]
}

// Join joins a group path and a member name.
func Join(dir, name string) string {
	return Clean(dir + "/" + name)
}

func checkName(p string) error {
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}
