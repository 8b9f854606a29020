package heap

import (
	"github.com/robert-malhotra/go-audata/internal/binary"
)

// MaxCollectionObjects is the largest object index a collection can hold.
const MaxCollectionObjects = 0xFFFF

// writeCollection stores objs as objects 1..n of a new collection and
// returns its address. Fewer than objectHeader bytes trail the last object,
// which readers take as free space.
func writeCollection(w *binary.Writer, alloc func(int64) uint64, objs [][]byte) (uint64, error) {
	ls := w.LengthSize()
	size := collectionHeader(ls)
	for _, o := range objs {
		size += objectHeader(ls) + align8(len(o))
	}
	size = align8(size + 2)

	buf := make([]byte, size)
	copy(buf, "GCOL")
	buf[4] = 1
	binary.PutUintLE(buf[8:], uint64(size), ls)
	pos := collectionHeader(ls)
	for i, o := range objs {
		binary.PutUintLE(buf[pos:], uint64(i+1), 2)
		binary.PutUintLE(buf[pos+2:], 1, 2) // reference count
		binary.PutUintLE(buf[pos+8:], uint64(len(o)), ls)
		pos += objectHeader(ls)
		copy(buf[pos:], o)
		pos += align8(len(o))
	}

	addr := alloc(int64(size))
	return addr, w.At(int64(addr)).WriteBytes(buf)
}

// WriteVlenStrings stores values as heap objects, splitting them over as many
// collections as needed. Empty strings are not stored and get a zero ID.
func WriteVlenStrings(w *binary.Writer, alloc func(int64) uint64, values []string) ([]VlenRef, error) {
	refs := make([]VlenRef, len(values))
	var (
		objs  [][]byte
		owner []int // value index per pending object
	)
	flush := func() error {
		if len(objs) == 0 {
			return nil
		}
		addr, err := writeCollection(w, alloc, objs)
		if err != nil {
			return err
		}
		for obj, vi := range owner {
			refs[vi].ID = ID{CollectionAddress: addr, ObjectIndex: uint32(obj + 1)}
		}
		objs, owner = objs[:0], owner[:0]
		return nil
	}

	for i, v := range values {
		refs[i].Length = uint32(len(v))
		if v == "" {
			continue
		}
		if len(objs) == MaxCollectionObjects {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		objs = append(objs, []byte(v))
		owner = append(owner, i)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return refs, nil
}
