package layout

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/btree"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// entries lists the stored chunks of the dataset.
func (c *Chunked) entries() ([]btree.ChunkEntry, error) {
	addr := c.msg.ChunkIndexAddr
	if c.r.IsUndefinedOffset(addr) {
		return nil, nil
	}
	if c.msg.Version < 4 {
		return btree.ReadChunks(c.r, addr, len(c.chunk))
	}
	switch c.msg.ChunkIndexType {
	case message.ChunkIndexSingleChunk:
		e := btree.ChunkEntry{Offset: make([]uint64, len(c.chunk)), Address: addr}
		if c.msg.ChunkFlags&flagFilteredSingle != 0 {
			e.Size, e.FilterMask = uint64(c.msg.FilteredChunkSize), c.msg.FilterMask
		}
		return []btree.ChunkEntry{e}, nil
	case message.ChunkIndexImplicit:
		g := c.grid(false)
		out := make([]btree.ChunkEntry, g.len())
		for i := range out {
			out[i] = btree.ChunkEntry{Offset: g.offset(uint64(i)), Address: addr + uint64(i)*c.chunkBytes()}
		}
		return out, nil
	case message.ChunkIndexFixedArray:
		return c.fixedArray(addr)
	case message.ChunkIndexExtensibleArray:
		return c.extensibleArray(addr)
	case message.ChunkIndexBTreeV2:
		return btree.ReadChunksV2(c.r, addr, c.chunk)
	}
	return nil, fmt.Errorf("unsupported chunk index type %d", c.msg.ChunkIndexType)
}

// grid numbers the chunks of the dataset's maximum extent in row-major
// order. With unlimited set the unlimited dimension is moved first, which
// is how extensible arrays number their elements.
type grid struct {
	order []int    // dimension at each position
	n     []uint64 // chunks along each position
	chunk []uint64
}

func (c *Chunked) grid(unlimited bool) grid {
	rank := len(c.chunk)
	g := grid{order: make([]int, 0, rank), n: make([]uint64, 0, rank), chunk: c.chunk}
	unlim := binary.Undefined(c.r.LengthSize())
	u := -1
	if unlimited {
		for d, m := range c.maxDims {
			if m == unlim {
				u = d
				break
			}
		}
	}
	if u >= 0 {
		g.order = append(g.order, u)
	}
	for d := range rank {
		if d != u {
			g.order = append(g.order, d)
		}
	}
	for _, d := range g.order {
		m := c.maxDims[d]
		if d == u || m == unlim || m < c.shape.dims[d] {
			m = c.shape.dims[d]
		}
		g.n = append(g.n, (m+c.chunk[d]-1)/c.chunk[d])
	}
	return g
}

func (g grid) len() uint64 { return product(g.n) }

// offset is the first element of chunk i.
func (g grid) offset(i uint64) []uint64 {
	off := make([]uint64, len(g.order))
	for k := len(g.order) - 1; k >= 0; k-- {
		d := g.order[k]
		if k == 0 {
			off[d] = i * g.chunk[d]
			break
		}
		off[d] = (i % g.n[k]) * g.chunk[d]
		i /= g.n[k]
	}
	return off
}

// elementCodec decodes the chunk records stored by fixed and extensible
// arrays: an address, then for filtered chunks the stored size and filter
// mask.
type elementCodec struct {
	offsetSize int
	size       int
	filtered   bool
}

func (e elementCodec) decode(b []byte) (addr, size uint64, mask uint32) {
	addr = binary.UintLE(b, e.offsetSize)
	if e.filtered {
		n := e.size - e.offsetSize - 4
		size = binary.UintLE(b[e.offsetSize:], n)
		mask = uint32(binary.UintLE(b[e.offsetSize+n:], 4))
	}
	return addr, size, mask
}

func (e elementCodec) check() error {
	min := e.offsetSize
	if e.filtered {
		min += 5
	}
	if e.size < min {
		return fmt.Errorf("%w: %d byte chunk records", ErrCorrupt, e.size)
	}
	return nil
}

// verify checks the trailing lookup3 checksum of a metadata block.
func verify(raw []byte, what string) error {
	n := len(raw) - 4
	if n < 0 || binary.Lookup3Checksum(raw[:n]) != uint32(binary.UintLE(raw[n:], 4)) {
		return fmt.Errorf("%w: %s checksum mismatch", ErrCorrupt, what)
	}
	return nil
}

// bitSet reads bit i of a most-significant-bit-first bitmap.
func bitSet(mask []byte, i uint64) bool {
	return mask[i/8]&(0x80>>(i%8)) != 0
}
