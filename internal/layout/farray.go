package layout

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/btree"
)

// Fixed array client IDs.
const (
	clientChunks         = 0
	clientFilteredChunks = 1
)

// fixedArray reads the chunk records of a fixed array index.
func (c *Chunked) fixedArray(addr uint64) ([]btree.ChunkEntry, error) {
	o, l := c.r.OffsetSize(), c.r.LengthSize()
	hdr, err := c.r.At(int64(addr)).ReadBytes(8 + l + o + 4)
	if err != nil {
		return nil, fmt.Errorf("reading fixed array header: %w", err)
	}
	if string(hdr[:4]) != "FAHD" || hdr[4] != 0 {
		return nil, fmt.Errorf("%w: bad fixed array header %q v%d", ErrCorrupt, hdr[:4], hdr[4])
	}
	if err := verify(hdr, "fixed array header"); err != nil {
		return nil, err
	}
	codec := elementCodec{offsetSize: o, size: int(hdr[6]), filtered: hdr[5] == clientFilteredChunks}
	if err := codec.check(); err != nil {
		return nil, err
	}
	pageBits := hdr[7]
	n := binary.UintLE(hdr[8:], l)
	block := binary.UintLE(hdr[8+l:], o)
	if n == 0 || c.r.IsUndefinedOffset(block) {
		return nil, nil
	}

	g := c.grid(false)
	var out []btree.ChunkEntry
	add := func(raw []byte, first, count uint64) {
		for i := range count {
			a, size, mask := codec.decode(raw[i*uint64(codec.size):])
			if a == 0 || c.r.IsUndefinedOffset(a) {
				continue
			}
			out = append(out, btree.ChunkEntry{Offset: g.offset(first + i), Address: a, Size: size, FilterMask: mask})
		}
	}

	prefix := 6 + o
	page := uint64(1) << pageBits
	es := uint64(codec.size)
	if n <= page {
		raw, err := c.r.At(int64(block)).ReadBytes(prefix + int(n*es) + 4)
		if err != nil {
			return nil, fmt.Errorf("reading fixed array data block: %w", err)
		}
		if err := c.checkBlock(raw, "FADB"); err != nil {
			return nil, err
		}
		add(raw[prefix:], 0, n)
		return out, nil
	}

	// Paged: a bitmap of initialized pages follows the prefix, and each page
	// carries its own checksum.
	pages := (n + page - 1) / page
	head, err := c.r.At(int64(block)).ReadBytes(prefix + int((pages+7)/8) + 4)
	if err != nil {
		return nil, fmt.Errorf("reading fixed array data block: %w", err)
	}
	if err := c.checkBlock(head, "FADB"); err != nil {
		return nil, err
	}
	bitmap := head[prefix:]
	pos := block + uint64(len(head))
	for p := range pages {
		count := min(page, n-p*page)
		if bitSet(bitmap, p) {
			raw, err := c.r.At(int64(pos)).ReadBytes(int(count*es) + 4)
			if err != nil {
				return nil, fmt.Errorf("reading fixed array page %d: %w", p, err)
			}
			if err := verify(raw, "fixed array page"); err != nil {
				return nil, err
			}
			add(raw, p*page, count)
		}
		pos += page*es + 4
	}
	return out, nil
}

// checkBlock validates the signature, version and checksum of an array
// block.
func (c *Chunked) checkBlock(raw []byte, sig string) error {
	if string(raw[:4]) != sig || raw[4] != 0 {
		return fmt.Errorf("%w: bad %s block %q v%d", ErrCorrupt, sig, raw[:4], raw[4])
	}
	return verify(raw, sig)
}

// WriteFixedArrayIndex writes a fixed array header and data block for the
// given chunks. It returns the header address and the page bits recorded in
// it, which the layout message must repeat.
func (cw *ChunkWriter) WriteFixedArrayIndex(chunks []StoredChunk) (uint64, uint8, error) {
	n := len(chunks)
	pageBits := PageBits(n)
	if n == 0 {
		return undefinedAddress, pageBits, nil
	}
	o, l := cw.w.OffsetSize(), cw.w.LengthSize()
	es := cw.EntrySize()
	client := byte(clientChunks)
	if cw.Filtered() {
		client = clientFilteredChunks
	}

	hdrAddr := cw.allocator(int64(8 + l + o + 4))
	blockSize := 6 + o + n*es + 4
	blockAddr := cw.allocator(int64(blockSize))

	block := make([]byte, blockSize)
	copy(block, "FADB")
	block[5] = client
	binary.PutUintLE(block[6:], hdrAddr, o)
	pos := 6 + o
	sizeLen := es - o - 4
	for _, ch := range chunks {
		binary.PutUintLE(block[pos:], ch.Addr, o)
		if cw.Filtered() {
			binary.PutUintLE(block[pos+o:], uint64(ch.Size), sizeLen)
			binary.PutUintLE(block[pos+o+sizeLen:], uint64(ch.Mask), 4)
		}
		pos += es
	}
	binary.PutUintLE(block[pos:], uint64(binary.Lookup3Checksum(block[:pos])), 4)
	if err := cw.w.At(int64(blockAddr)).WriteBytes(block); err != nil {
		return 0, 0, err
	}

	hdr := make([]byte, 8+l+o+4)
	copy(hdr, "FAHD")
	hdr[5] = client
	hdr[6] = byte(es)
	hdr[7] = pageBits
	binary.PutUintLE(hdr[8:], uint64(n), l)
	binary.PutUintLE(hdr[8+l:], blockAddr, o)
	binary.PutUintLE(hdr[8+l+o:], uint64(binary.Lookup3Checksum(hdr[:8+l+o])), 4)
	if err := cw.w.At(int64(hdrAddr)).WriteBytes(hdr); err != nil {
		return 0, 0, err
	}
	return hdrAddr, pageBits, nil
}

// PageBits returns the fixed array page size (log2) for n entries. The data
// block is never paged: the page always covers every entry.
func PageBits(n int) uint8 {
	pb := uint8(10)
	for 1<<pb < n {
		pb++
	}
	return pb
}
