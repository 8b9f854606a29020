// Package hdf5 reads and writes HDF5 files in pure Go.
package hdf5

import "errors"

// Common errors
var (
	ErrNotHDF5     = errors.New("not an HDF5 file")
	ErrNotFound    = errors.New("object not found")
	ErrExists      = errors.New("object already exists")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrUnsupported = errors.New("unsupported feature")
	ErrInvalidPath = errors.New("invalid path")
	ErrClosed      = errors.New("file is closed")
	ErrReadOnly    = errors.New("file is not writable")
	ErrLinkDepth   = errors.New("maximum link depth exceeded")
	ErrOutOfRange  = errors.New("row range out of bounds")
)

// MaxLinkDepth is the maximum number of soft links that can be followed
// in a single path resolution.
const MaxLinkDepth = 100
