package layout

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/filter"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// memFile is a growable in-memory io.ReaderAt/io.WriterAt.
type memFile struct {
	buf []byte
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, nil
	}
	return copy(p, m.buf[off:]), nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	return copy(m.buf[off:], p), nil
}

func (m *memFile) put(addr uint64, b []byte) { _, _ = m.WriteAt(b, int64(addr)) }

func (m *memFile) reader() *binary.Reader { return binary.NewReader(m, binary.DefaultConfig()) }

// bumpAllocator hands out addresses after a fixed prefix.
func bumpAllocator(start uint64) func(int64) uint64 {
	next := start
	return func(size int64) uint64 {
		addr := next
		next += uint64(size)
		return addr
	}
}

func le(b []byte, v uint64, n int) []byte {
	out := make([]byte, n)
	binary.PutUintLE(out, v, n)
	return append(b, out...)
}

func sealed(b []byte) []byte {
	return le(b, uint64(binary.Lookup3Checksum(b)), 4)
}

func simple(dims ...uint64) *message.Dataspace {
	return &message.Dataspace{SpaceType: message.DataspaceSimple, Rank: len(dims), Dimensions: dims}
}

func bytesType(size uint32) *message.Datatype {
	return &message.Datatype{Class: message.ClassFixedPoint, Size: size}
}

// seq returns n bytes counting up from zero.
func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestCompact(t *testing.T) {
	msg := &message.DataLayout{Class: message.LayoutCompact, CompactData: seq(12)}
	c := NewCompact(msg, simple(3, 4), bytesType(1))
	assert.Equal(t, message.LayoutCompact, c.Class())

	all, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(12), all)
	all[0] = 0xFF
	assert.Zero(t, msg.CompactData[0], "Read returns a copy")

	got, err := c.ReadSlice([]uint64{1, 1}, []uint64{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 9, 10}, got)

	short := NewCompact(&message.DataLayout{CompactData: seq(4)}, simple(8), bytesType(1))
	_, err = short.Read()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCompactScalar(t *testing.T) {
	c := NewCompact(&message.DataLayout{CompactData: []byte{1, 2, 3, 4}},
		&message.Dataspace{SpaceType: message.DataspaceScalar}, bytesType(4))
	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestContiguous(t *testing.T) {
	f := &memFile{}
	f.put(100, seq(24))
	c := NewContiguous(&message.DataLayout{Address: 100, Size: 24}, simple(4, 3), bytesType(2), f.reader())
	assert.Equal(t, message.LayoutContiguous, c.Class())

	all, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(24), all)

	got, err := c.ReadSlice([]uint64{2, 1}, []uint64{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{14, 15, 16, 17, 20, 21, 22, 23}, got)

	_, err = c.ReadSlice([]uint64{3, 0}, []uint64{2, 1})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = c.ReadSlice([]uint64{0}, []uint64{1})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestContiguousUnallocated(t *testing.T) {
	f := &memFile{}
	c := NewContiguous(&message.DataLayout{Address: binary.Undefined(8)}, simple(5), bytesType(4), f.reader())
	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 20), got)
}

func TestPageBits(t *testing.T) {
	assert.Equal(t, uint8(10), PageBits(0))
	assert.Equal(t, uint8(10), PageBits(1024))
	assert.Equal(t, uint8(11), PageBits(1025))
	assert.Equal(t, uint8(12), PageBits(4096))
}

func TestSplitRows(t *testing.T) {
	data := make([]byte, 10*4)
	chunks := SplitRows(data, 4, 3)
	require.Len(t, chunks, 4)
	assert.Len(t, chunks[0], 12)
	assert.Len(t, chunks[3], 4)
	assert.Nil(t, SplitRows(data, 0, 3))
}

// writeAndRead stores rows of int32 through a chunk writer with the given
// pipeline and reads them back through the Chunked reader.
func writeAndRead(t *testing.T, fp *message.FilterPipeline, rows int, chunkRows uint32) ([]byte, []byte) {
	t.Helper()
	f := &memFile{}
	w := binary.NewWriter(f, binary.DefaultConfig())

	raw := make([]byte, rows*4)
	for i := range rows {
		binary.PutUintLE(raw[i*4:], uint64(i*7), 4)
	}

	pipeline, err := filter.NewPipeline(fp)
	require.NoError(t, err)
	cw := NewChunkWriter(w, []uint32{chunkRows}, 4, pipeline, bumpAllocator(64))
	stored, err := cw.WriteChunks(SplitRows(raw, 4, int(chunkRows)))
	require.NoError(t, err)

	msg := message.NewChunkedLayout([]uint32{chunkRows}, 4, message.ChunkIndexFixedArray)
	msg.ChunkIndexAddr, msg.PageBits, err = cw.WriteFixedArrayIndex(stored)
	require.NoError(t, err)

	chunked, err := NewChunked(msg, simple(uint64(rows)), bytesType(4), fp, f.reader())
	require.NoError(t, err)
	back, err := chunked.Read()
	require.NoError(t, err)

	got, err := chunked.StoredChunks()
	require.NoError(t, err)
	assert.Equal(t, stored, got)
	return raw, back
}

func TestChunkWriterUnfiltered(t *testing.T) {
	raw, back := writeAndRead(t, nil, 25, 8)
	assert.Equal(t, raw, back)
}

func TestChunkWriterFiltered(t *testing.T) {
	fp := message.NewFilterPipeline(
		message.ShuffleFilter(4),
		message.DeflateFilter(4),
		message.Fletcher32Filter(),
	)
	raw, back := writeAndRead(t, fp, 3000, 100)
	assert.Equal(t, raw, back)
}

func TestChunkedReadSlice(t *testing.T) {
	f := &memFile{}
	w := binary.NewWriter(f, binary.DefaultConfig())
	raw := seq(20)
	fp := message.NewFilterPipeline(message.DeflateFilter(6))
	pipeline, err := filter.NewPipeline(fp)
	require.NoError(t, err)

	cw := NewChunkWriter(w, []uint32{6}, 1, pipeline, bumpAllocator(64))
	stored, err := cw.WriteChunks(SplitRows(raw, 1, 6))
	require.NoError(t, err)
	msg := message.NewChunkedLayout([]uint32{6}, 1, message.ChunkIndexFixedArray)
	msg.ChunkIndexAddr, msg.PageBits, err = cw.WriteFixedArrayIndex(stored)
	require.NoError(t, err)

	chunked, err := NewChunked(msg, simple(20), bytesType(1), fp, f.reader())
	require.NoError(t, err)
	got, err := chunked.ReadSlice([]uint64{4}, []uint64{10})
	require.NoError(t, err)
	assert.Equal(t, raw[4:14], got)

	_, err = chunked.ReadSlice([]uint64{15}, []uint64{10})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestChunkedMissingChunks(t *testing.T) {
	f := &memFile{}
	w := binary.NewWriter(f, binary.DefaultConfig())
	cw := NewChunkWriter(w, []uint32{4}, 1, nil, bumpAllocator(64))
	first, err := cw.WriteChunk([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	msg := message.NewChunkedLayout([]uint32{4}, 1, message.ChunkIndexFixedArray)
	msg.ChunkIndexAddr, msg.PageBits, err = cw.WriteFixedArrayIndex([]StoredChunk{first, {Addr: undefinedAddress}})
	require.NoError(t, err)

	chunked, err := NewChunked(msg, simple(8), bytesType(1), nil, f.reader())
	require.NoError(t, err)
	got, err := chunked.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, got)

	empty := message.NewChunkedLayout([]uint32{4}, 1, message.ChunkIndexFixedArray)
	empty.ChunkIndexAddr = undefinedAddress
	chunked, err = NewChunked(empty, simple(8), bytesType(1), nil, f.reader())
	require.NoError(t, err)
	got, err = chunked.Read()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), got)
}

func TestNewChunkedErrors(t *testing.T) {
	msg := message.NewChunkedLayout([]uint32{4, 4}, 1, message.ChunkIndexFixedArray)
	_, err := NewChunked(msg, simple(8), bytesType(1), nil, (&memFile{}).reader())
	assert.ErrorIs(t, err, ErrCorrupt)

	msg = message.NewChunkedLayout([]uint32{0}, 1, message.ChunkIndexFixedArray)
	_, err = NewChunked(msg, simple(8), bytesType(1), nil, (&memFile{}).reader())
	assert.ErrorIs(t, err, ErrCorrupt)
}

// grid2D stores a 5x7 byte array as 2x3 chunks; chunk (i, j) starts at
// element (2i, 3j). It returns the array and each chunk's bytes in row-major
// chunk order.
func grid2D() ([]byte, [][]byte) {
	data := seq(35)
	var chunks [][]byte
	for ci := uint64(0); ci < 3; ci++ {
		for cj := uint64(0); cj < 3; cj++ {
			chunk := make([]byte, 6)
			for r := range uint64(2) {
				for c := range uint64(3) {
					i, j := ci*2+r, cj*3+c
					if i < 5 && j < 7 {
						chunk[r*3+c] = data[i*7+j]
					}
				}
			}
			chunks = append(chunks, chunk)
		}
	}
	return data, chunks
}

func TestChunkedBTreeV1(t *testing.T) {
	data, chunks := grid2D()
	f := &memFile{}

	// A level 0 node: keys are size, mask and the element offset with a
	// trailing element axis; children are the chunk addresses.
	node := []byte{'T', 'R', 'E', 'E', 1, 0}
	node = le(node, uint64(len(chunks)), 2)
	node = le(node, binary.Undefined(8), 8)
	node = le(node, binary.Undefined(8), 8)
	key := func(i, j uint64) []byte {
		b := le(le(nil, 6, 4), 0, 4)
		return le(le(le(b, i, 8), j, 8), 0, 8)
	}
	addr := uint64(2000)
	for k, c := range chunks {
		i, j := uint64(k/3)*2, uint64(k%3)*3
		f.put(addr, c)
		node = append(node, key(i, j)...)
		node = le(node, addr, 8)
		addr += 16
	}
	node = append(node, key(6, 9)...)
	f.put(100, node)

	msg := &message.DataLayout{Version: 3, Class: message.LayoutChunked, ChunkDims: []uint32{2, 3, 1}, ChunkIndexAddr: 100}
	l, err := New(msg, simple(5, 7), bytesType(1), nil, f.reader())
	require.NoError(t, err)
	assert.Equal(t, message.LayoutChunked, l.Class())

	all, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, data, all)

	got, err := l.ReadSlice([]uint64{1, 2}, []uint64{3, 4})
	require.NoError(t, err)
	want := []byte{}
	for i := 1; i < 4; i++ {
		want = append(want, data[i*7+2:i*7+6]...)
	}
	assert.Equal(t, want, got)
}

func TestChunkedImplicit(t *testing.T) {
	data, chunks := grid2D()
	f := &memFile{}
	f.put(500, bytes.Join(chunks, nil))

	msg := message.NewChunkedLayout([]uint32{2, 3}, 1, message.ChunkIndexImplicit)
	msg.ChunkIndexAddr = 500
	l, err := New(msg, simple(5, 7), bytesType(1), nil, f.reader())
	require.NoError(t, err)
	all, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, data, all)
}

func TestChunkedSingleFiltered(t *testing.T) {
	fp := message.NewFilterPipeline(message.DeflateFilter(6))
	pipeline, err := filter.NewPipeline(fp)
	require.NoError(t, err)
	data := bytes.Repeat([]byte("audata"), 10)
	enc, _, err := pipeline.Encode(data)
	require.NoError(t, err)

	f := &memFile{}
	f.put(300, enc)
	msg := message.NewChunkedLayout([]uint32{60}, 1, message.ChunkIndexSingleChunk)
	msg.ChunkFlags = flagFilteredSingle
	msg.FilteredChunkSize = uint32(len(enc))
	msg.ChunkIndexAddr = 300

	l, err := New(msg, simple(60), bytesType(1), fp, f.reader())
	require.NoError(t, err)
	got, err := l.ReadSlice([]uint64{6}, []uint64{12})
	require.NoError(t, err)
	assert.Equal(t, []byte("audataaudata"), got)
}

func TestFixedArrayPaged(t *testing.T) {
	f := &memFile{}
	// Six one-byte chunks in pages of four; the second page was never
	// initialized.
	for i := range 6 {
		f.put(uint64(1000+i), []byte{byte(10 + i)})
	}
	block := []byte{'F', 'A', 'D', 'B', 0, clientChunks}
	block = le(block, 100, 8)
	block = append(block, 0x80) // page 0 only
	f.put(200, sealed(block))
	page := []byte{}
	for i := range 4 {
		page = le(page, uint64(1000+i), 8)
	}
	f.put(200+uint64(len(block))+4, sealed(page))

	hdr := []byte{'F', 'A', 'H', 'D', 0, clientChunks, 8, 2}
	hdr = le(hdr, 6, 8)
	hdr = le(hdr, 200, 8)
	f.put(100, sealed(hdr))

	msg := message.NewChunkedLayout([]uint32{1}, 1, message.ChunkIndexFixedArray)
	msg.ChunkIndexAddr = 100
	l, err := New(msg, simple(6), bytesType(1), nil, f.reader())
	require.NoError(t, err)
	got, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 11, 12, 13, 0, 0}, got)

	f.buf[200+len(block)+4] ^= 0xFF
	_, err = l.Read()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestExtensibleArray(t *testing.T) {
	f := &memFile{}
	const (
		es      = 8
		maxBits = 10
	)
	chunkAt := func(i int) uint64 { return 5000 + uint64(i)*8 }
	for i := range 16 {
		f.put(chunkAt(i), bytes.Repeat([]byte{byte(i + 1)}, 5))
	}
	elems := func(from, n int) []byte {
		var b []byte
		for i := from; i < from+n; i++ {
			addr := chunkAt(i)
			if i == 5 {
				addr = binary.Undefined(8)
			}
			b = le(b, addr, es)
		}
		return b
	}
	prefix := func(sig string, off uint64) []byte {
		b := append([]byte(sig), 0, clientChunks)
		b = le(b, 100, 8)
		return le(b, off, 2)
	}

	// Index block: two elements, two data block addresses (super blocks 0
	// and 1) and eight super block addresses.
	ib := append([]byte("EAIB"), 0, clientChunks)
	ib = le(ib, 100, 8)
	ib = append(ib, elems(0, 2)...)
	ib = le(ib, 700, 8)
	ib = le(ib, 800, 8)
	ib = le(ib, 900, 8)
	for range 7 {
		ib = le(ib, binary.Undefined(8), 8)
	}
	f.put(400, sealed(ib))
	f.put(700, sealed(append(prefix("EADB", 2), elems(2, 2)...)))
	f.put(800, sealed(append(prefix("EADB", 4), elems(4, 4)...)))

	// Super block 2 holds two data blocks of four elements.
	sb := prefix("EASB", 8)
	sb = le(sb, 1000, 8)
	sb = le(sb, 1100, 8)
	f.put(900, sealed(sb))
	f.put(1000, sealed(append(prefix("EADB", 8), elems(8, 4)...)))
	f.put(1100, sealed(append(prefix("EADB", 12), elems(12, 4)...)))

	hdr := append([]byte("EAHD"), 0, clientChunks, es, maxBits, 2, 2, 2, 10)
	for _, v := range []uint64{1, 0, 4, 0, 14, 14} {
		hdr = le(hdr, v, 8)
	}
	hdr = le(hdr, 400, 8)
	f.put(100, sealed(hdr))

	space := simple(70)
	space.MaxDims = []uint64{binary.Undefined(8)}
	msg := message.NewChunkedLayout([]uint32{5}, 1, message.ChunkIndexExtensibleArray)
	msg.ChunkIndexAddr = 100
	l, err := New(msg, space, bytesType(1), nil, f.reader())
	require.NoError(t, err)
	got, err := l.Read()
	require.NoError(t, err)

	want := make([]byte, 70)
	for i := range 14 {
		if i != 5 {
			copy(want[i*5:], bytes.Repeat([]byte{byte(i + 1)}, 5))
		}
	}
	assert.Equal(t, want, got)
}

func TestChunkedBTreeV2(t *testing.T) {
	data, chunks := grid2D()
	f := &memFile{}
	leaf := []byte{'B', 'T', 'L', 'F', 0, 10}
	for k, c := range chunks {
		addr := uint64(3000 + 16*k)
		f.put(addr, c)
		leaf = le(le(le(leaf, uint64(k/3), 8), uint64(k%3), 8), addr, 8)
	}
	f.put(1000, sealed(leaf))

	hdr := []byte{'B', 'T', 'H', 'D', 0, 10}
	hdr = le(hdr, 4096, 4)
	hdr = le(hdr, 24, 2)
	hdr = le(hdr, 0, 2)
	hdr = append(hdr, 100, 40)
	hdr = le(hdr, 1000, 8)
	hdr = le(hdr, uint64(len(chunks)), 2)
	hdr = le(hdr, uint64(len(chunks)), 8)
	f.put(100, sealed(hdr))

	msg := message.NewChunkedLayout([]uint32{2, 3}, 1, message.ChunkIndexBTreeV2)
	msg.ChunkIndexAddr = 100
	l, err := New(msg, simple(5, 7), bytesType(1), nil, f.reader())
	require.NoError(t, err)
	all, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, data, all)
}

func TestGridSwizzle(t *testing.T) {
	c := &Chunked{
		r:       (&memFile{}).reader(),
		shape:   shape{dims: []uint64{6, 10}, elem: 1},
		maxDims: []uint64{6, binary.Undefined(8)},
		chunk:   []uint64{3, 5},
	}
	g := c.grid(true)
	assert.Equal(t, []int{1, 0}, g.order)
	// The unlimited column dimension varies slowest.
	assert.Equal(t, []uint64{0, 0}, g.offset(0))
	assert.Equal(t, []uint64{3, 0}, g.offset(1))
	assert.Equal(t, []uint64{0, 5}, g.offset(2))
	assert.Equal(t, []uint64{3, 15}, g.offset(7))

	flat := c.grid(false)
	assert.Equal(t, []uint64{0, 5}, flat.offset(1))
	assert.EqualValues(t, 4, flat.len())
}
