package btree

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/heap"
)

// GroupEntry is one member of a symbol-table group.
type GroupEntry struct {
	Name    string
	Address uint64
	// Target is set for soft links, whose Address is meaningless.
	Target string
}

// Soft reports whether the entry is a soft link.
func (e GroupEntry) Soft() bool { return e.Target != "" }

// cacheSoftLink marks a symbol table entry whose scratch pad holds the heap
// offset of a soft link value.
const cacheSoftLink = 2

// ReadGroup lists the members of the group indexed by the tree at addr,
// whose names live in the local heap at heapAddr.
func ReadGroup(r *binary.Reader, addr, heapAddr uint64) ([]GroupEntry, error) {
	names, err := heap.ReadLocal(r, heapAddr)
	if err != nil {
		return nil, err
	}
	var out []GroupEntry
	err = walkV1(r, addr, groupNode, r.LengthSize(), 0, func(_ []byte, snod uint64) error {
		entries, err := readSymbolNode(r, snod, names)
		out = append(out, entries...)
		return err
	})
	return out, err
}

// readSymbolNode reads the entries of one SNOD.
func readSymbolNode(r *binary.Reader, addr uint64, names *heap.Local) ([]GroupEntry, error) {
	nr := r.At(int64(addr))
	head, err := nr.ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("reading symbol node at %#x: %w", addr, err)
	}
	if string(head[:4]) != "SNOD" {
		return nil, fmt.Errorf("%w: bad symbol node signature %q", ErrCorrupt, head[:4])
	}
	if head[4] != 1 {
		return nil, fmt.Errorf("unsupported symbol node version %d", head[4])
	}
	n := int(binary.UintLE(head[6:], 2))

	out := make([]GroupEntry, 0, n)
	for i := range n {
		nameOff, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}
		obj, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}
		cache, err := nr.ReadUint32()
		if err != nil {
			return nil, err
		}
		nr.Skip(4)
		scratch, err := nr.ReadBytes(16)
		if err != nil {
			return nil, err
		}

		e := GroupEntry{Address: obj}
		if e.Name, err = names.Name(nameOff); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if cache == cacheSoftLink {
			if e.Target, err = names.Name(binary.UintLE(scratch, 4)); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			e.Address = 0
		}
		if e.Name != "" {
			out = append(out, e)
		}
	}
	return out, nil
}
