// Package layout reads and writes the raw data of HDF5 datasets.
//
// A dataset's data lives inline in its header (compact), in one block of
// the file (contiguous) or in separately stored chunks found through an
// index (chunked). Every reader returns elements in row-major order.
package layout

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/message"
)

var (
	// ErrOutOfBounds reports a selection outside the dataset.
	ErrOutOfBounds = errors.New("selection out of bounds")
	// ErrCorrupt reports storage that does not match its description.
	ErrCorrupt = errors.New("corrupt dataset storage")
)

// Layout reads the data of one dataset.
type Layout interface {
	// Read returns every element.
	Read() ([]byte, error)
	// ReadSlice returns the count-shaped block of elements starting at start.
	ReadSlice(start, count []uint64) ([]byte, error)
	Class() message.LayoutClass
}

// New returns the reader for a dataset's layout message.
func New(msg *message.DataLayout, space *message.Dataspace, dtype *message.Datatype, fp *message.FilterPipeline, r *binary.Reader) (Layout, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: no layout message", ErrCorrupt)
	}
	switch msg.Class {
	case message.LayoutCompact:
		return NewCompact(msg, space, dtype), nil
	case message.LayoutContiguous:
		return NewContiguous(msg, space, dtype, r), nil
	case message.LayoutChunked:
		return NewChunked(msg, space, dtype, fp, r)
	}
	return nil, fmt.Errorf("unsupported layout class %d", msg.Class)
}

// shape is the extent of a dataset and the size of its elements. Scalars
// have a single dimension of one element.
type shape struct {
	dims []uint64
	elem uint64
}

func newShape(space *message.Dataspace, dtype *message.Datatype) shape {
	s := shape{dims: []uint64{1}}
	if dtype != nil {
		s.elem = uint64(dtype.Size)
	}
	switch {
	case space == nil || space.IsScalar():
	case space.IsNull():
		s.dims = []uint64{0}
	case len(space.Dimensions) > 0:
		s.dims = space.Dimensions
	}
	return s
}

func product(v []uint64) uint64 {
	n := uint64(1)
	for _, x := range v {
		n *= x
	}
	return n
}

// size is the number of bytes of the whole dataset.
func (s shape) size() uint64 { return product(s.dims) * s.elem }

func (s shape) check(start, count []uint64) error {
	if len(start) != len(s.dims) || len(count) != len(s.dims) {
		return fmt.Errorf("%w: %d-d selection of a %d-d dataset", ErrOutOfBounds, len(start), len(s.dims))
	}
	for d, n := range s.dims {
		if start[d] > n || count[d] > n-start[d] {
			return fmt.Errorf("%w: [%d, %d+%d) in dimension %d of size %d",
				ErrOutOfBounds, start[d], start[d], count[d], d, n)
		}
	}
	return nil
}

// whole is the selection covering every element.
func (s shape) whole() (start, count []uint64) {
	return make([]uint64, len(s.dims)), s.dims
}

// linear is the row-major index of idx in an array of shape dims.
func linear(dims, idx []uint64) uint64 {
	var i uint64
	for d, n := range dims {
		i = i*n + idx[d]
	}
	return i
}

// eachRow calls fn with the index of the first element of every row of a
// box of shape count, in row-major order. A row runs along the last
// dimension. idx is reused between calls.
func eachRow(count []uint64, fn func(idx []uint64) error) error {
	if product(count) == 0 {
		return nil
	}
	last := len(count) - 1
	idx := make([]uint64, len(count))
	for {
		if err := fn(idx); err != nil {
			return err
		}
		d := last - 1
		for ; d >= 0; d-- {
			if idx[d]++; idx[d] < count[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}

// gather assembles a selection from a flat row-major source. fetch returns
// n bytes at byte offset off of the source.
func gather(s shape, start, count []uint64, fetch func(off, n uint64) ([]byte, error)) ([]byte, error) {
	if err := s.check(start, count); err != nil {
		return nil, err
	}
	out := make([]byte, product(count)*s.elem)
	run := count[len(count)-1] * s.elem
	at := make([]uint64, len(s.dims))
	var pos uint64
	err := eachRow(count, func(idx []uint64) error {
		for d := range idx {
			at[d] = start[d] + idx[d]
		}
		b, err := fetch(linear(s.dims, at)*s.elem, run)
		if err != nil {
			return err
		}
		copy(out[pos:pos+run], b)
		pos += run
		return nil
	})
	return out, err
}
