package btree

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// Record types of version 2 chunk trees.
const (
	typeChunk         = 10
	typeFilteredChunk = 11
)

// v2Prefix is the signature, version and type that open every node, and
// v2Checksum the checksum that closes it.
const (
	v2Prefix   = 6
	v2Checksum = 4
)

// v2Tree is a version 2 B-tree header with the field widths derived from it.
type v2Tree struct {
	r        *binary.Reader
	typ      uint8
	recSize  int
	depth    int
	root     uint64
	rootRecs int
	total    uint64

	// countSize is the width of a child's record count; totalSize[d] the
	// width of the subtree total in a pointer to a depth-d child.
	countSize int
	totalSize []int
}

// encSize is the number of bytes needed to store values up to n.
func encSize(n uint64) int {
	return (bits.Len64(n)-1)/8 + 1
}

func readV2(r *binary.Reader, addr uint64) (*v2Tree, error) {
	o, l := r.OffsetSize(), r.LengthSize()
	size := 16 + o + 2 + l + v2Checksum
	raw, err := r.At(int64(addr)).ReadBytes(size)
	if err != nil {
		return nil, fmt.Errorf("reading b-tree header at %#x: %w", addr, err)
	}
	if string(raw[:4]) != "BTHD" {
		return nil, fmt.Errorf("%w: bad signature %q at %#x", ErrCorrupt, raw[:4], addr)
	}
	if raw[4] != 0 {
		return nil, fmt.Errorf("unsupported b-tree version %d", raw[4])
	}
	if err := verify(raw); err != nil {
		return nil, err
	}
	t := &v2Tree{
		r:        r,
		typ:      raw[5],
		recSize:  int(binary.UintLE(raw[10:], 2)),
		depth:    int(binary.UintLE(raw[12:], 2)),
		root:     binary.UintLE(raw[16:], o),
		rootRecs: int(binary.UintLE(raw[16+o:], 2)),
		total:    binary.UintLE(raw[18+o:], l),
	}
	nodeSize := int(binary.UintLE(raw[6:], 4))
	if t.recSize == 0 || t.depth > maxDepth {
		return nil, fmt.Errorf("%w: record size %d, depth %d", ErrCorrupt, t.recSize, t.depth)
	}

	// Capacities follow the library's node sizing: a leaf holds as many
	// records as fit, and each level above holds records plus pointers.
	leafMax := uint64((nodeSize - v2Prefix - v2Checksum) / t.recSize)
	t.countSize = encSize(leafMax)
	t.totalSize = make([]int, t.depth+1)
	cum := leafMax
	for d := 1; d <= t.depth; d++ {
		ptr := o + t.countSize
		if d > 1 {
			ptr += t.totalSize[d-1]
		}
		n := uint64((nodeSize - v2Prefix - v2Checksum - ptr) / (t.recSize + ptr))
		cum = (n+1)*cum + n
		t.totalSize[d] = encSize(cum)
	}
	return t, nil
}

func verify(raw []byte) error {
	n := len(raw) - v2Checksum
	if binary.Lookup3Checksum(raw[:n]) != uint32(binary.UintLE(raw[n:], 4)) {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return nil
}

// walk visits the records of the node at addr, which holds n records and
// sits depth levels above the leaves.
func (t *v2Tree) walk(addr uint64, n, depth int, visit func(rec []byte) error) error {
	sig, ptr := "BTLF", 0
	if depth > 0 {
		sig, ptr = "BTIN", t.r.OffsetSize()+t.countSize
		if depth > 1 {
			ptr += t.totalSize[depth-1]
		}
	}
	size := v2Prefix + n*t.recSize + v2Checksum
	if depth > 0 {
		size += (n + 1) * ptr
	}
	raw, err := t.r.At(int64(addr)).ReadBytes(size)
	if err != nil {
		return fmt.Errorf("reading b-tree node at %#x: %w", addr, err)
	}
	if string(raw[:4]) != sig {
		return fmt.Errorf("%w: bad signature %q, want %s", ErrCorrupt, raw[:4], sig)
	}
	if raw[5] != t.typ {
		return fmt.Errorf("%w: node type %d in a type %d tree", ErrCorrupt, raw[5], t.typ)
	}
	if err := verify(raw); err != nil {
		return err
	}

	recs := raw[v2Prefix:]
	ptrs := recs[n*t.recSize:]
	for i := range n + 1 {
		if depth > 0 {
			p := ptrs[i*ptr:]
			child := binary.UintLE(p, t.r.OffsetSize())
			count := int(binary.UintLE(p[t.r.OffsetSize():], t.countSize))
			if err := t.walk(child, count, depth-1, visit); err != nil {
				return err
			}
		}
		if i < n {
			if err := visit(recs[i*t.recSize : (i+1)*t.recSize]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadChunksV2 lists the chunks of a version 2 chunk tree. Records store
// chunk coordinates scaled by the chunk shape, so chunkDims (one per dataset
// dimension) turns them back into element offsets.
func ReadChunksV2(r *binary.Reader, addr uint64, chunkDims []uint64) ([]ChunkEntry, error) {
	t, err := readV2(r, addr)
	if err != nil {
		return nil, err
	}
	if t.typ != typeChunk && t.typ != typeFilteredChunk {
		return nil, fmt.Errorf("%w: record type %d is not a chunk index", ErrCorrupt, t.typ)
	}
	ndims := len(chunkDims)
	o := r.OffsetSize()
	want := o + 8*ndims
	if t.typ == typeFilteredChunk {
		want += 4 + 1 // at least one byte of size
	}
	if t.recSize < want {
		return nil, fmt.Errorf("%w: %d byte records for %d dimensions", ErrCorrupt, t.recSize, ndims)
	}
	if t.total == 0 {
		return nil, nil
	}

	scaled := func(b []byte) []uint64 {
		off := make([]uint64, ndims)
		for d := range ndims {
			off[d] = binary.UintLE(b[8*d:], 8) * chunkDims[d]
		}
		return off
	}
	out := make([]ChunkEntry, 0, t.total)
	err = t.walk(t.root, t.rootRecs, t.depth, func(rec []byte) error {
		var e ChunkEntry
		if t.typ == typeChunk {
			e.Offset = scaled(rec)
			e.Address = binary.UintLE(rec[8*ndims:], o)
		} else {
			sizeLen := t.recSize - o - 4 - 8*ndims
			e.Address = binary.UintLE(rec, o)
			e.Size = binary.UintLE(rec[o:], sizeLen)
			e.FilterMask = uint32(binary.UintLE(rec[o+sizeLen:], 4))
			e.Offset = scaled(rec[o+sizeLen+4:])
		}
		if !r.IsUndefinedOffset(e.Address) {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}
