package message

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// LayoutClass is how a dataset's raw data is stored.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0 // in the object header
	LayoutContiguous LayoutClass = 1 // one block
	LayoutChunked    LayoutClass = 2 // indexed chunks
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndexType is the structure that locates the chunks of a version 4
// chunked layout.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0 // version 1 B-tree, layouts before version 4
	ChunkIndexSingleChunk     ChunkIndexType = 1
	ChunkIndexImplicit        ChunkIndexType = 2
	ChunkIndexFixedArray      ChunkIndexType = 3
	ChunkIndexExtensibleArray ChunkIndexType = 4
	ChunkIndexBTreeV2         ChunkIndexType = 5
)

// DefaultPageBits is the fixed array page size (log2) libhdf5 uses.
const DefaultPageBits = 10

// Creation parameters libhdf5 uses for indexes this package never builds.
var (
	defaultEAParams  = []byte{32, 4, 4, 16, 10}    // max bits, index elements, min pointers, min elements, page bits
	defaultBT2Params = []byte{0, 8, 0, 0, 100, 40} // node size 2048, split and merge percent
)

// DataLayout locates a dataset's raw data.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	CompactData []byte

	// Contiguous
	Address uint64
	Size    uint64

	// Chunked. ChunkDims has one more entry than the dataspace rank: the
	// element size in bytes.
	ChunkDims          []uint32
	ChunkIndexAddr     uint64
	ChunkIndexType     ChunkIndexType
	ChunkFlags         uint8
	DimensionSizeBytes uint8

	// Single chunk index with filters.
	FilteredChunkSize uint32
	FilterMask        uint32

	// PageBits is the fixed array page size (log2).
	PageBits uint8
	// IndexParams holds the creation parameters of extensible array and
	// version 2 B-tree indexes.
	IndexParams []byte
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

func (m *DataLayout) IsChunked() bool { return m.Class == LayoutChunked }

func parseDataLayout(data []byte, r *binary.Reader) (*DataLayout, error) {
	d := newDecoder(data, r, "data layout")
	m := &DataLayout{Version: d.u8()}
	switch m.Version {
	case 1, 2:
		m.parseV1(d)
	case 3, 4:
		m.Class = LayoutClass(d.u8())
		switch m.Class {
		case LayoutCompact:
			m.CompactData = append([]byte(nil), d.take(int(d.u16()))...)
		case LayoutContiguous:
			m.Address, m.Size = d.offset(), d.length()
		case LayoutChunked:
			if m.Version == 3 {
				m.parseChunkedV3(d)
			} else if err := m.parseChunkedV4(d); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported layout class %d", m.Class)
		}
	default:
		return nil, fmt.Errorf("unsupported data layout version %d", m.Version)
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

// parseV1 reads the layouts of versions 1 and 2. Contiguous storage does
// not record its size there; it is the product of the stored dimensions,
// the last of which is the element size.
func (m *DataLayout) parseV1(d *decoder) {
	ndims := int(d.u8())
	m.Class = LayoutClass(d.u8())
	d.skip(5)
	switch m.Class {
	case LayoutContiguous:
		m.Address = d.offset()
	case LayoutChunked:
		m.ChunkIndexAddr = d.offset()
	}
	dims := make([]uint32, ndims)
	size := uint64(1)
	for i := range dims {
		dims[i] = d.u32()
		size *= uint64(dims[i])
	}
	switch m.Class {
	case LayoutCompact:
		m.CompactData = append([]byte(nil), d.take(int(d.u32()))...)
	case LayoutContiguous:
		m.Size = size
	case LayoutChunked:
		m.ChunkDims = dims
	}
}

func (m *DataLayout) parseChunkedV3(d *decoder) {
	ndims := int(d.u8())
	m.ChunkIndexAddr = d.offset()
	m.ChunkDims = make([]uint32, ndims)
	for i := range m.ChunkDims {
		m.ChunkDims[i] = d.u32()
	}
}

func (m *DataLayout) parseChunkedV4(d *decoder) error {
	m.ChunkFlags = d.u8()
	ndims := int(d.u8())
	m.DimensionSizeBytes = d.u8()
	if w := m.DimensionSizeBytes; w < 1 || w > 8 {
		return fmt.Errorf("chunk dimensions of %d bytes", w)
	}
	m.ChunkDims = make([]uint32, ndims)
	for i := range m.ChunkDims {
		m.ChunkDims[i] = uint32(d.uint(int(m.DimensionSizeBytes)))
	}
	m.ChunkIndexType = ChunkIndexType(d.u8())
	switch m.ChunkIndexType {
	case ChunkIndexSingleChunk:
		if m.ChunkFlags&0x02 != 0 {
			m.FilteredChunkSize = uint32(d.length())
			m.FilterMask = d.u32()
		}
	case ChunkIndexImplicit:
	case ChunkIndexFixedArray:
		m.PageBits = d.u8()
	case ChunkIndexExtensibleArray:
		m.IndexParams = append([]byte(nil), d.take(len(defaultEAParams))...)
	case ChunkIndexBTreeV2:
		m.IndexParams = append([]byte(nil), d.take(len(defaultBT2Params))...)
	default:
		return fmt.Errorf("unsupported chunk index type %d", m.ChunkIndexType)
	}
	m.ChunkIndexAddr = d.offset()
	return nil
}

// encode writes version 3 for compact and contiguous data and version 4
// for chunks.
func (m *DataLayout) encode(e *encoder) {
	version := uint8(3)
	if m.Class == LayoutChunked {
		version = 4
	}
	e.u8(version)
	e.u8(uint8(m.Class))
	switch m.Class {
	case LayoutCompact:
		e.u16(uint16(len(m.CompactData)))
		e.bytes(m.CompactData)
	case LayoutContiguous:
		e.offset(m.Address)
		e.length(m.Size)
	case LayoutChunked:
		m.encodeChunked(e)
	}
}

func (m *DataLayout) encodeChunked(e *encoder) {
	width := int(m.DimensionSizeBytes)
	if width == 0 {
		width = 4
	}
	e.u8(m.ChunkFlags)
	e.u8(uint8(len(m.ChunkDims)))
	e.u8(uint8(width))
	for _, n := range m.ChunkDims {
		e.uint(uint64(n), width)
	}
	e.u8(uint8(m.ChunkIndexType))
	params := func(def []byte) {
		if len(m.IndexParams) == len(def) {
			def = m.IndexParams
		}
		e.bytes(def)
	}
	switch m.ChunkIndexType {
	case ChunkIndexSingleChunk:
		if m.ChunkFlags&0x02 != 0 {
			e.length(uint64(m.FilteredChunkSize))
			e.u32(m.FilterMask)
		}
	case ChunkIndexFixedArray:
		pageBits := m.PageBits
		if pageBits == 0 {
			pageBits = DefaultPageBits
		}
		e.u8(pageBits)
	case ChunkIndexExtensibleArray:
		params(defaultEAParams)
	case ChunkIndexBTreeV2:
		params(defaultBT2Params)
	}
	e.offset(m.ChunkIndexAddr)
}

func (m *DataLayout) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *DataLayout) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

func NewCompactLayout(data []byte) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutCompact, CompactData: data}
}

// NewContiguousLayout describes size bytes at address.
func NewContiguousLayout(address, size uint64) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutContiguous, Address: address, Size: size}
}

// NewChunkedLayout describes chunks of the given shape holding elements of
// elementSize bytes. The index address is filled in once the index is
// written.
func NewChunkedLayout(chunkDims []uint32, elementSize uint32, indexType ChunkIndexType) *DataLayout {
	dims := append(append([]uint32(nil), chunkDims...), elementSize)
	var widest uint32
	for _, n := range dims {
		widest = max(widest, n)
	}
	return &DataLayout{
		Version:            4,
		Class:              LayoutChunked,
		ChunkDims:          dims,
		ChunkIndexType:     indexType,
		DimensionSizeBytes: uint8(uintWidth(uint64(widest))),
	}
}
