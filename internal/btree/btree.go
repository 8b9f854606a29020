// Package btree reads the B-trees HDF5 uses to index group members and
// dataset chunks.
//
// Version 1 trees ("TREE") index the members of symbol-table groups and the
// chunks of datasets whose layout predates version 4. Version 2 trees
// ("BTHD") index chunks of datasets with more than one unlimited dimension.
package btree

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// ErrCorrupt reports a tree that cannot be walked.
var ErrCorrupt = errors.New("corrupt b-tree")

// maxDepth bounds recursion so a cyclic tree fails instead of hanging.
const maxDepth = 32

// Node types of a version 1 tree.
const (
	groupNode = 0
	chunkNode = 1
)

// ChunkEntry is one stored chunk.
type ChunkEntry struct {
	// Offset is the coordinate of the chunk's first element.
	Offset     []uint64
	FilterMask uint32
	// Size is the stored size in bytes, or 0 when the index does not record
	// it because the chunk is unfiltered.
	Size    uint64
	Address uint64
}

// walkV1 visits every leaf child of the version 1 tree at addr with the key
// that precedes it.
func walkV1(r *binary.Reader, addr uint64, kind uint8, keySize, depth int, visit func(key []byte, child uint64) error) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: deeper than %d levels", ErrCorrupt, maxDepth)
	}
	nr := r.At(int64(addr))
	head, err := nr.ReadBytes(8)
	if err != nil {
		return fmt.Errorf("reading b-tree node at %#x: %w", addr, err)
	}
	if string(head[:4]) != "TREE" {
		return fmt.Errorf("%w: bad signature %q at %#x", ErrCorrupt, head[:4], addr)
	}
	if head[4] != kind {
		return fmt.Errorf("%w: node type %d, want %d", ErrCorrupt, head[4], kind)
	}
	level := head[5]
	used := int(binary.UintLE(head[6:], 2))
	nr.Skip(2 * int64(nr.OffsetSize())) // siblings

	for range used {
		key, err := nr.ReadBytes(keySize)
		if err != nil {
			return err
		}
		child, err := nr.ReadOffset()
		if err != nil {
			return err
		}
		if level > 0 {
			err = walkV1(r, child, kind, keySize, depth+1, visit)
		} else {
			err = visit(key, child)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadChunks lists the chunks of a version 1 chunk tree for a dataset of
// rank ndims.
func ReadChunks(r *binary.Reader, addr uint64, ndims int) ([]ChunkEntry, error) {
	// size(4) mask(4) and one offset per dimension plus the element axis
	keySize := 8 + 8*(ndims+1)
	var out []ChunkEntry
	err := walkV1(r, addr, chunkNode, keySize, 0, func(key []byte, child uint64) error {
		if r.IsUndefinedOffset(child) {
			return nil
		}
		e := ChunkEntry{
			Size:       binary.UintLE(key, 4),
			FilterMask: uint32(binary.UintLE(key[4:], 4)),
			Offset:     make([]uint64, ndims),
			Address:    child,
		}
		for d := range ndims {
			e.Offset[d] = binary.UintLE(key[8+8*d:], 8)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}
