package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/btree"
)

// earray holds the creation parameters of an extensible array and the
// geometry derived from them.
type earray struct {
	codec      elementCodec
	indexElems uint64 // elements stored in the index block
	blockMin   uint64 // elements in the smallest data block
	pageElems  uint64 // elements per data block page
	offsetLen  int    // width of a block's element offset
	minPtrs    uint64 // data block pointers of the smallest super block
	superIndex int    // super blocks whose data blocks the index block addresses
	supers     int
	limit      uint64 // elements ever set
}

// superBlock describes super block u: how many data blocks it spans and how
// many elements each holds.
func (ea *earray) superBlock(u int) (blocks, elems uint64) {
	return 1 << (u / 2), (1 << ((u + 1) / 2)) * ea.blockMin
}

func log2(n uint64) int { return bits.Len64(n) - 1 }

// extensibleArray reads the chunk records of an extensible array index.
func (c *Chunked) extensibleArray(addr uint64) ([]btree.ChunkEntry, error) {
	o, l := c.r.OffsetSize(), c.r.LengthSize()
	hdr, err := c.r.At(int64(addr)).ReadBytes(12 + 6*l + o + 4)
	if err != nil {
		return nil, fmt.Errorf("reading extensible array header: %w", err)
	}
	if string(hdr[:4]) != "EAHD" || hdr[4] != 0 {
		return nil, fmt.Errorf("%w: bad extensible array header %q v%d", ErrCorrupt, hdr[:4], hdr[4])
	}
	if err := verify(hdr, "extensible array header"); err != nil {
		return nil, err
	}
	ea := &earray{
		codec:      elementCodec{offsetSize: o, size: int(hdr[6]), filtered: hdr[5] == clientFilteredChunks},
		indexElems: uint64(hdr[8]),
		blockMin:   uint64(hdr[9]),
		pageElems:  1 << hdr[11],
		offsetLen:  (int(hdr[7]) + 7) / 8,
		limit:      binary.UintLE(hdr[12+4*l:], l),
	}
	maxBits := int(hdr[7])
	ea.minPtrs = uint64(hdr[10])
	if err := ea.codec.check(); err != nil {
		return nil, err
	}
	if bits.OnesCount64(ea.blockMin) != 1 || bits.OnesCount64(ea.minPtrs) != 1 ||
		maxBits < log2(ea.blockMin) || maxBits > 64 {
		return nil, fmt.Errorf("%w: extensible array parameters", ErrCorrupt)
	}
	ea.supers = 1 + maxBits - log2(ea.blockMin)
	ea.superIndex = 2 * log2(ea.minPtrs)
	index := binary.UintLE(hdr[12+6*l:], o)
	if ea.limit == 0 || c.r.IsUndefinedOffset(index) {
		return nil, nil
	}

	w := &eaWalker{c: c, ea: ea, g: c.grid(true)}
	err = w.walk(index)
	return w.out, err
}

// eaWalker visits the elements of an extensible array in index order.
type eaWalker struct {
	c    *Chunked
	ea   *earray
	g    grid
	next uint64
	out  []btree.ChunkEntry
}

func (w *eaWalker) take(raw []byte, n uint64) {
	es := uint64(w.ea.codec.size)
	for i := uint64(0); i < n && w.next < w.ea.limit; i++ {
		a, size, mask := w.ea.codec.decode(raw[i*es:])
		if a != 0 && !w.c.r.IsUndefinedOffset(a) {
			w.out = append(w.out, btree.ChunkEntry{Offset: w.g.offset(w.next), Address: a, Size: size, FilterMask: mask})
		}
		w.next++
	}
}

func (w *eaWalker) walk(index uint64) error {
	r, ea := w.c.r, w.ea
	o := r.OffsetSize()
	direct := 2 * (ea.minPtrs - 1)
	indirect := uint64(max(ea.supers-ea.superIndex, 0))
	es := uint64(ea.codec.size)

	raw, err := r.At(int64(index)).ReadBytes(6 + o + int(ea.indexElems*es+(direct+indirect)*uint64(o)) + 4)
	if err != nil {
		return fmt.Errorf("reading extensible array index block: %w", err)
	}
	if err := w.c.checkBlock(raw, "EAIB"); err != nil {
		return err
	}
	body := raw[6+o:]
	w.take(body, ea.indexElems)
	addrs := body[ea.indexElems*es:]

	k := 0
	for u := 0; u < ea.supers && w.next < ea.limit; u++ {
		blocks, elems := ea.superBlock(u)
		if u < ea.superIndex {
			for range blocks {
				if err := w.dataBlock(binary.UintLE(addrs[k*o:], o), elems, nil); err != nil {
					return err
				}
				k++
			}
			continue
		}
		sb := binary.UintLE(addrs[(int(direct)+u-ea.superIndex)*o:], o)
		if err := w.superBlock(sb, blocks, elems); err != nil {
			return err
		}
	}
	return nil
}

// superBlock reads a secondary block and the data blocks it addresses.
func (w *eaWalker) superBlock(addr, blocks, elems uint64) error {
	if w.next >= w.ea.limit {
		return nil
	}
	if w.c.r.IsUndefinedOffset(addr) {
		w.next += blocks * elems
		return nil
	}
	o := w.c.r.OffsetSize()
	var maskLen uint64
	if elems > w.ea.pageElems {
		maskLen = (elems/w.ea.pageElems + 7) / 8
	}
	prefix := 6 + o + w.ea.offsetLen
	raw, err := w.c.r.At(int64(addr)).ReadBytes(prefix + int(blocks*maskLen+blocks*uint64(o)) + 4)
	if err != nil {
		return fmt.Errorf("reading extensible array super block: %w", err)
	}
	if err := w.c.checkBlock(raw, "EASB"); err != nil {
		return err
	}
	masks := raw[prefix:]
	addrs := masks[blocks*maskLen:]
	for b := range blocks {
		var mask []byte
		if maskLen > 0 {
			mask = masks[b*maskLen : (b+1)*maskLen]
		}
		if err := w.dataBlock(binary.UintLE(addrs[b*uint64(o):], o), elems, mask); err != nil {
			return err
		}
	}
	return nil
}

// dataBlock reads the elems elements of a data block. Paged blocks list
// their initialized pages in mask; a nil mask means every page is.
func (w *eaWalker) dataBlock(addr, elems uint64, mask []byte) error {
	if w.next >= w.ea.limit {
		return nil
	}
	if w.c.r.IsUndefinedOffset(addr) {
		w.next += elems
		return nil
	}
	es := uint64(w.ea.codec.size)
	prefix := 6 + w.c.r.OffsetSize() + w.ea.offsetLen
	if elems <= w.ea.pageElems {
		raw, err := w.c.r.At(int64(addr)).ReadBytes(prefix + int(elems*es) + 4)
		if err != nil {
			return fmt.Errorf("reading extensible array data block: %w", err)
		}
		if err := w.c.checkBlock(raw, "EADB"); err != nil {
			return err
		}
		w.take(raw[prefix:], elems)
		return nil
	}

	head, err := w.c.r.At(int64(addr)).ReadBytes(prefix + 4)
	if err != nil {
		return fmt.Errorf("reading extensible array data block: %w", err)
	}
	if err := w.c.checkBlock(head, "EADB"); err != nil {
		return err
	}
	pos := addr + uint64(len(head))
	pageSize := w.ea.pageElems*es + 4
	for p := range elems / w.ea.pageElems {
		if mask != nil && !bitSet(mask, p) {
			w.next += w.ea.pageElems
			pos += pageSize
			continue
		}
		raw, err := w.c.r.At(int64(pos)).ReadBytes(int(pageSize))
		if err != nil {
			return fmt.Errorf("reading extensible array page: %w", err)
		}
		if err := verify(raw, "extensible array page"); err != nil {
			return err
		}
		w.take(raw, w.ea.pageElems)
		pos += pageSize
	}
	return nil
}
