// Package heap reads and writes HDF5 heaps: the local heaps that hold the
// member names of symbol-table groups, and the global heap collections that
// hold variable-length strings.
package heap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// ErrCorrupt reports a heap whose structure does not match its header.
var ErrCorrupt = errors.New("corrupt heap")

// Local is the data segment of a local heap.
type Local struct {
	data []byte
}

// ReadLocal reads the local heap at addr together with its data segment.
func ReadLocal(r *binary.Reader, addr uint64) (*Local, error) {
	hr := r.At(int64(addr))
	prefix, err := hr.ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("reading local heap: %w", err)
	}
	if string(prefix[:4]) != "HEAP" {
		return nil, fmt.Errorf("%w: bad local heap signature %q", ErrCorrupt, prefix[:4])
	}
	if prefix[4] != 0 {
		return nil, fmt.Errorf("unsupported local heap version %d", prefix[4])
	}
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	hr.Skip(int64(hr.LengthSize())) // free list head
	dataAddr, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	data, err := r.At(int64(dataAddr)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("reading local heap data: %w", err)
	}
	return &Local{data: data}, nil
}

// Name returns the NUL-terminated string at off.
func (h *Local) Name(off uint64) (string, error) {
	if off >= uint64(len(h.data)) {
		return "", fmt.Errorf("%w: name offset %d beyond %d byte segment", ErrCorrupt, off, len(h.data))
	}
	s := h.data[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), nil
}
