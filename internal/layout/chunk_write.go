package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/filter"
)

const undefinedAddress = 0xFFFFFFFFFFFFFFFF

// StoredChunk describes one chunk as it sits in the file.
type StoredChunk struct {
	Addr uint64
	Size uint32 // encoded size in bytes
	Mask uint32 // filters skipped for this chunk
}

// ChunkWriter writes chunk data through an optional filter pipeline and
// builds the fixed array index that points at it.
type ChunkWriter struct {
	w           *binary.Writer
	chunkDims   []uint32
	elementSize uint32
	pipeline    *filter.Pipeline
	allocator   func(size int64) uint64
}

// NewChunkWriter creates a new chunk writer. pipeline may be nil.
func NewChunkWriter(w *binary.Writer, chunkDims []uint32, elementSize uint32, pipeline *filter.Pipeline, allocator func(size int64) uint64) *ChunkWriter {
	return &ChunkWriter{
		w:           w,
		chunkDims:   chunkDims,
		elementSize: elementSize,
		pipeline:    pipeline,
		allocator:   allocator,
	}
}

// ChunkSize returns the size in bytes of one unfiltered chunk.
func (cw *ChunkWriter) ChunkSize() uint64 {
	size := uint64(cw.elementSize)
	for _, dim := range cw.chunkDims {
		size *= uint64(dim)
	}
	return size
}

// Filtered reports whether chunks pass through a non-empty pipeline.
func (cw *ChunkWriter) Filtered() bool {
	return cw.pipeline != nil && !cw.pipeline.Empty()
}

// WriteChunk pads raw to a full chunk, encodes it and stores it at a fresh
// address. Edge chunks are always stored full size.
func (cw *ChunkWriter) WriteChunk(raw []byte) (StoredChunk, error) {
	full := int(cw.ChunkSize())
	if len(raw) > full {
		return StoredChunk{}, fmt.Errorf("chunk data is %d bytes, chunk holds %d", len(raw), full)
	}
	data := raw
	if len(raw) < full {
		data = make([]byte, full)
		copy(data, raw)
	}

	var mask uint32
	if cw.Filtered() {
		encoded, m, err := cw.pipeline.Encode(data)
		if err != nil {
			return StoredChunk{}, fmt.Errorf("encoding chunk: %w", err)
		}
		data, mask = encoded, m
	}

	addr := cw.allocator(int64(len(data)))
	if err := cw.w.At(int64(addr)).WriteBytes(data); err != nil {
		return StoredChunk{}, err
	}
	return StoredChunk{Addr: addr, Size: uint32(len(data)), Mask: mask}, nil
}

// WriteChunks writes each chunk in order.
func (cw *ChunkWriter) WriteChunks(chunks [][]byte) ([]StoredChunk, error) {
	stored := make([]StoredChunk, len(chunks))
	for i, chunk := range chunks {
		sc, err := cw.WriteChunk(chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		stored[i] = sc
	}
	return stored, nil
}

// chunkSizeBytes is the width of the encoded-size field in a filtered
// fixed array entry, derived from the unfiltered chunk size.
func (cw *ChunkWriter) chunkSizeBytes() int {
	size := cw.ChunkSize()
	if size == 0 {
		return 1
	}
	return min(1+(bits.Len64(size)+7)/8, 8)
}

// EntrySize returns the size of one fixed array element.
func (cw *ChunkWriter) EntrySize() int {
	if !cw.Filtered() {
		return cw.w.OffsetSize()
	}
	return cw.w.OffsetSize() + cw.chunkSizeBytes() + 4
}

// SplitRows splits row-major data of rowSize-byte rows into pieces of at
// most chunkRows rows each.
func SplitRows(data []byte, rowSize, chunkRows int) [][]byte {
	if rowSize <= 0 || chunkRows <= 0 {
		return nil
	}
	step := rowSize * chunkRows
	chunks := make([][]byte, 0, (len(data)+step-1)/step)
	for off := 0; off < len(data); off += step {
		chunks = append(chunks, data[off:min(off+step, len(data))])
	}
	return chunks
}
