package layout

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/btree"
	"github.com/robert-malhotra/go-audata/internal/filter"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// Layout message flags of version 4 chunked layouts.
const (
	flagUnfilteredEdges = 0x01
	flagFilteredSingle  = 0x02
)

// Chunked is data stored in fixed-shape chunks. Chunks that were never
// written read as zeros.
type Chunked struct {
	r        *binary.Reader
	msg      *message.DataLayout
	shape    shape
	maxDims  []uint64
	chunk    []uint64
	pipeline *filter.Pipeline
}

func NewChunked(msg *message.DataLayout, space *message.Dataspace, dtype *message.Datatype, fp *message.FilterPipeline, r *binary.Reader) (*Chunked, error) {
	pipeline, err := filter.NewPipeline(fp)
	if err != nil {
		return nil, fmt.Errorf("creating filter pipeline: %w", err)
	}
	c := &Chunked{r: r, msg: msg, shape: newShape(space, dtype), pipeline: pipeline}

	rank := len(c.shape.dims)
	dims := msg.ChunkDims
	if len(dims) == rank+1 {
		dims = dims[:rank] // the last entry is the element size
	}
	if len(dims) != rank {
		return nil, fmt.Errorf("%w: %d chunk dimensions for rank %d", ErrCorrupt, len(msg.ChunkDims), rank)
	}
	c.chunk = make([]uint64, rank)
	for d, n := range dims {
		if n == 0 {
			return nil, fmt.Errorf("%w: zero chunk dimension", ErrCorrupt)
		}
		c.chunk[d] = uint64(n)
	}

	c.maxDims = c.shape.dims
	if space != nil && len(space.MaxDims) == rank {
		c.maxDims = space.MaxDims
	}
	return c, nil
}

func (c *Chunked) Class() message.LayoutClass { return message.LayoutChunked }

// chunkBytes is the size of one unfiltered chunk.
func (c *Chunked) chunkBytes() uint64 { return product(c.chunk) * c.shape.elem }

func (c *Chunked) Read() ([]byte, error) {
	return c.ReadSlice(c.shape.whole())
}

func (c *Chunked) ReadSlice(start, count []uint64) ([]byte, error) {
	if err := c.shape.check(start, count); err != nil {
		return nil, err
	}
	out := make([]byte, product(count)*c.shape.elem)
	if len(out) == 0 {
		return out, nil
	}
	entries, err := c.entries()
	if err != nil {
		return nil, fmt.Errorf("reading chunk index: %w", err)
	}

	rank := len(c.chunk)
	lo, extent := make([]uint64, rank), make([]uint64, rank)
	src, dst := make([]uint64, rank), make([]uint64, rank)
	for _, e := range entries {
		if !c.overlap(e.Offset, start, count, lo, extent) {
			continue
		}
		data, err := c.load(e)
		if err != nil {
			return nil, err
		}
		run := extent[rank-1] * c.shape.elem
		_ = eachRow(extent, func(idx []uint64) error {
			for d := range idx {
				src[d] = lo[d] - e.Offset[d] + idx[d]
				dst[d] = lo[d] - start[d] + idx[d]
			}
			s := linear(c.chunk, src) * c.shape.elem
			t := linear(count, dst) * c.shape.elem
			copy(out[t:t+run], data[s:s+run])
			return nil
		})
	}
	return out, nil
}

// overlap intersects the chunk at origin with the selection, storing the
// intersection's first element in lo and its shape in extent.
func (c *Chunked) overlap(origin, start, count, lo, extent []uint64) bool {
	if len(origin) != len(c.chunk) {
		return false
	}
	for d := range c.chunk {
		a := max(origin[d], start[d])
		b := min(origin[d]+c.chunk[d], start[d]+count[d])
		if a >= b {
			return false
		}
		lo[d], extent[d] = a, b-a
	}
	return true
}

// load reads and decodes one chunk.
func (c *Chunked) load(e btree.ChunkEntry) ([]byte, error) {
	size := e.Size
	if size == 0 {
		size = c.chunkBytes()
	}
	data, err := c.r.At(int64(e.Address)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("reading chunk at %v: %w", e.Offset, err)
	}
	if !c.pipeline.Empty() && !(c.msg.ChunkFlags&flagUnfilteredEdges != 0 && c.edge(e.Offset)) {
		if data, err = c.pipeline.Decode(data, e.FilterMask); err != nil {
			return nil, fmt.Errorf("decoding chunk at %v: %w", e.Offset, err)
		}
	}
	if uint64(len(data)) < c.chunkBytes() {
		return nil, fmt.Errorf("%w: chunk at %v holds %d bytes, want %d", ErrCorrupt, e.Offset, len(data), c.chunkBytes())
	}
	return data, nil
}

// edge reports whether the chunk at origin extends past the dataset.
func (c *Chunked) edge(origin []uint64) bool {
	for d, n := range c.shape.dims {
		if origin[d]+c.chunk[d] > n {
			return true
		}
	}
	return false
}

// StoredChunks returns one entry per chunk of a one-dimensional dataset, in
// order. Chunks never written carry an undefined address.
func (c *Chunked) StoredChunks() ([]StoredChunk, error) {
	if len(c.chunk) != 1 {
		return nil, fmt.Errorf("stored chunks of a %d-d dataset", len(c.chunk))
	}
	entries, err := c.entries()
	if err != nil {
		return nil, err
	}
	chunks := make([]StoredChunk, (c.shape.dims[0]+c.chunk[0]-1)/c.chunk[0])
	for i := range chunks {
		chunks[i].Addr = undefinedAddress
	}
	for _, e := range entries {
		i := e.Offset[0] / c.chunk[0]
		if i >= uint64(len(chunks)) {
			continue
		}
		size := e.Size
		if size == 0 {
			size = c.chunkBytes()
		}
		chunks[i] = StoredChunk{Addr: e.Address, Size: uint32(size), Mask: e.FilterMask}
	}
	return chunks, nil
}
