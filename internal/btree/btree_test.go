package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// image is a sparse file assembled from byte blocks.
type image struct{ buf []byte }

func (m *image) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, nil
	}
	return copy(p, m.buf[off:]), nil
}

func (m *image) put(addr int, b []byte) {
	if end := addr + len(b); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[addr:], b)
}

func (m *image) reader() *binary.Reader {
	return binary.NewReader(m, binary.DefaultConfig())
}

// le appends v as an n-byte little-endian integer.
func le(b []byte, v uint64, n int) []byte {
	out := make([]byte, n)
	binary.PutUintLE(out, v, n)
	return append(b, out...)
}

// treeV1 encodes a version 1 node whose children are paired with keys.
func treeV1(kind, level uint8, keys [][]byte, children []uint64) []byte {
	b := []byte{'T', 'R', 'E', 'E', kind, level}
	b = le(b, uint64(len(children)), 2)
	b = le(b, binary.Undefined(8), 8)
	b = le(b, binary.Undefined(8), 8)
	for i, c := range children {
		b = append(b, keys[i]...)
		b = le(b, c, 8)
	}
	return append(b, keys[len(children)]...)
}

func symbolEntry(nameOff, addr uint64, cache uint32, scratch uint64) []byte {
	b := le(nil, nameOff, 8)
	b = le(b, addr, 8)
	b = le(b, uint64(cache), 4)
	b = le(b, 0, 4)
	return le(b, scratch, 16)
}

func TestReadGroup(t *testing.T) {
	m := &image{}
	names := "\x00alpha\x00beta\x00link\x00/alpha\x00"
	heap := []byte{'H', 'E', 'A', 'P', 0, 0, 0, 0}
	heap = le(heap, uint64(len(names)), 8)
	heap = le(heap, binary.Undefined(8), 8)
	heap = le(heap, 2000, 8)
	m.put(1900, heap)
	m.put(2000, []byte(names))

	snod := func(entries ...[]byte) []byte {
		b := []byte{'S', 'N', 'O', 'D', 1, 0}
		b = le(b, uint64(len(entries)), 2)
		for _, e := range entries {
			b = append(b, e...)
		}
		return b
	}
	m.put(1000, snod(symbolEntry(1, 4000, 1, 0), symbolEntry(7, 5000, 0, 0)))
	m.put(1400, snod(symbolEntry(12, 0, cacheSoftLink, 17)))

	key := func(v uint64) []byte { return le(nil, v, 8) }
	m.put(200, treeV1(groupNode, 0, [][]byte{key(0), key(7)}, []uint64{1000}))
	m.put(400, treeV1(groupNode, 0, [][]byte{key(7), key(12)}, []uint64{1400}))
	m.put(600, treeV1(groupNode, 1, [][]byte{key(0), key(7), key(12)}, []uint64{200, 400}))

	entries, err := ReadGroup(m.reader(), 600, 1900)
	require.NoError(t, err)
	assert.Equal(t, []GroupEntry{
		{Name: "alpha", Address: 4000},
		{Name: "beta", Address: 5000},
		{Name: "link", Target: "/alpha"},
	}, entries)
	assert.True(t, entries[2].Soft())
	assert.False(t, entries[0].Soft())
}

func TestReadGroupErrors(t *testing.T) {
	m := &image{}
	m.put(100, []byte("HEAP\x00\x00\x00\x00"))
	m.put(0, treeV1(chunkNode, 0, [][]byte{make([]byte, 8)}, nil))

	_, err := ReadGroup(m.reader(), 0, 100)
	assert.ErrorIs(t, err, ErrCorrupt, "chunk node in a group tree")

	m.put(0, []byte("XXXX"))
	_, err = ReadGroup(m.reader(), 0, 100)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReadGroupCycle(t *testing.T) {
	m := &image{}
	m.put(100, []byte("HEAP\x00\x00\x00\x00"))
	key := le(nil, 0, 8)
	m.put(0, treeV1(groupNode, 1, [][]byte{key, key}, []uint64{0}))

	_, err := ReadGroup(m.reader(), 0, 100)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func chunkKey(size, mask uint32, offsets ...uint64) []byte {
	b := le(nil, uint64(size), 4)
	b = le(b, uint64(mask), 4)
	for _, o := range offsets {
		b = le(b, o, 8)
	}
	return le(b, 0, 8) // element axis
}

func TestReadChunks(t *testing.T) {
	m := &image{}
	keys := [][]byte{
		chunkKey(100, 0, 0, 0),
		chunkKey(90, 2, 0, 10),
		chunkKey(0, 0, 10, 0),
		chunkKey(0, 0, 20, 0),
	}
	m.put(64, treeV1(chunkNode, 0, keys, []uint64{3000, 3100, binary.Undefined(8)}))

	entries, err := ReadChunks(m.reader(), 64, 2)
	require.NoError(t, err)
	assert.Equal(t, []ChunkEntry{
		{Offset: []uint64{0, 0}, Size: 100, Address: 3000},
		{Offset: []uint64{0, 10}, Size: 90, FilterMask: 2, Address: 3100},
	}, entries)
}

func TestReadChunksInternal(t *testing.T) {
	m := &image{}
	k := func(row uint64) []byte { return chunkKey(8, 0, row) }
	m.put(100, treeV1(chunkNode, 0, [][]byte{k(0), k(4)}, []uint64{900}))
	m.put(300, treeV1(chunkNode, 0, [][]byte{k(4), k(8)}, []uint64{950}))
	m.put(500, treeV1(chunkNode, 1, [][]byte{k(0), k(4), k(8)}, []uint64{100, 300}))

	entries, err := ReadChunks(m.reader(), 500, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []uint64{4}, entries[1].Offset)
	assert.EqualValues(t, 950, entries[1].Address)
}

func sealed(b []byte) []byte {
	return le(b, uint64(binary.Lookup3Checksum(b)), 4)
}

func headerV2(typ uint8, nodeSize, recSize, depth int, root uint64, rootRecs int, total uint64) []byte {
	b := []byte{'B', 'T', 'H', 'D', 0, typ}
	b = le(b, uint64(nodeSize), 4)
	b = le(b, uint64(recSize), 2)
	b = le(b, uint64(depth), 2)
	b = append(b, 100, 40)
	b = le(b, root, 8)
	b = le(b, uint64(rootRecs), 2)
	b = le(b, total, 8)
	return sealed(b)
}

func TestReadChunksV2Leaf(t *testing.T) {
	m := &image{}
	rec := func(r, c, addr uint64) []byte { return le(le(le(nil, r, 8), c, 8), addr, 8) }
	leaf := []byte{'B', 'T', 'L', 'F', 0, typeChunk}
	leaf = append(leaf, rec(0, 0, 5000)...)
	leaf = append(leaf, rec(0, 1, 6000)...)
	leaf = append(leaf, rec(1, 0, binary.Undefined(8))...)
	m.put(200, sealed(leaf))
	m.put(100, headerV2(typeChunk, 512, 24, 0, 200, 3, 3))

	entries, err := ReadChunksV2(m.reader(), 100, []uint64{4, 8})
	require.NoError(t, err)
	assert.Equal(t, []ChunkEntry{
		{Offset: []uint64{0, 0}, Address: 5000},
		{Offset: []uint64{0, 8}, Address: 6000},
	}, entries)
}

func TestReadChunksV2Internal(t *testing.T) {
	m := &image{}
	// address(8) size(1) mask(4) offset(8)
	const recSize = 21
	rec := func(addr, size uint64, mask uint32, row uint64) []byte {
		b := le(nil, addr, 8)
		b = append(b, byte(size))
		b = le(b, uint64(mask), 4)
		return le(b, row, 8)
	}
	leaf := func(recs ...[]byte) []byte {
		b := []byte{'B', 'T', 'L', 'F', 0, typeFilteredChunk}
		for _, r := range recs {
			b = append(b, r...)
		}
		return sealed(b)
	}
	m.put(1000, leaf(rec(7000, 40, 0, 0), rec(7100, 41, 0, 1)))
	m.put(1200, leaf(rec(7300, 43, 1, 3)))

	// A 512 byte leaf holds 23 records, so child counts take one byte.
	in := []byte{'B', 'T', 'I', 'N', 0, typeFilteredChunk}
	in = append(in, rec(7200, 42, 0, 2)...)
	in = le(in, 1000, 8)
	in = append(in, 2)
	in = le(in, 1200, 8)
	in = append(in, 1)
	m.put(800, sealed(in))
	m.put(100, headerV2(typeFilteredChunk, 512, recSize, 1, 800, 1, 4))

	entries, err := ReadChunksV2(m.reader(), 100, []uint64{10})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, []uint64{uint64(i) * 10}, e.Offset)
		assert.EqualValues(t, 7000+100*i, e.Address)
		assert.EqualValues(t, 40+i, e.Size)
	}
	assert.EqualValues(t, 1, entries[3].FilterMask)
}

func TestReadChunksV2Checksum(t *testing.T) {
	m := &image{}
	hdr := headerV2(typeChunk, 512, 16, 0, 200, 0, 0)
	hdr[8] ^= 0xFF
	m.put(100, hdr)
	_, err := ReadChunksV2(m.reader(), 100, []uint64{4})
	assert.ErrorIs(t, err, ErrCorrupt)

	m.put(100, headerV2(5, 512, 16, 0, 200, 0, 0))
	_, err = ReadChunksV2(m.reader(), 100, []uint64{4})
	assert.ErrorIs(t, err, ErrCorrupt, "record type 5 is not a chunk index")
}

func TestEncSize(t *testing.T) {
	for n, want := range map[uint64]int{0: 1, 1: 1, 255: 1, 256: 2, 65535: 2, 65536: 3} {
		assert.Equal(t, want, encSize(n), "n=%d", n)
	}
}
