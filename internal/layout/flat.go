package layout

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// Compact is data stored in the dataset's object header.
type Compact struct {
	data  []byte
	shape shape
}

func NewCompact(msg *message.DataLayout, space *message.Dataspace, dtype *message.Datatype) *Compact {
	return &Compact{data: msg.CompactData, shape: newShape(space, dtype)}
}

func (c *Compact) Class() message.LayoutClass { return message.LayoutCompact }

func (c *Compact) Read() ([]byte, error) {
	return c.ReadSlice(c.shape.whole())
}

func (c *Compact) ReadSlice(start, count []uint64) ([]byte, error) {
	if uint64(len(c.data)) < c.shape.size() {
		return nil, fmt.Errorf("%w: %d compact bytes for %d", ErrCorrupt, len(c.data), c.shape.size())
	}
	return gather(c.shape, start, count, func(off, n uint64) ([]byte, error) {
		return c.data[off : off+n], nil
	})
}

// Contiguous is data stored in a single block of the file. A block that was
// never allocated reads as zeros.
type Contiguous struct {
	r     *binary.Reader
	addr  uint64
	size  uint64
	shape shape
}

func NewContiguous(msg *message.DataLayout, space *message.Dataspace, dtype *message.Datatype, r *binary.Reader) *Contiguous {
	return &Contiguous{r: r, addr: msg.Address, size: msg.Size, shape: newShape(space, dtype)}
}

func (c *Contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

func (c *Contiguous) Read() ([]byte, error) {
	return c.ReadSlice(c.shape.whole())
}

func (c *Contiguous) ReadSlice(start, count []uint64) ([]byte, error) {
	allocated := !c.r.IsUndefinedOffset(c.addr)
	if allocated && c.size < c.shape.size() {
		return nil, fmt.Errorf("%w: %d byte block for %d bytes of data", ErrCorrupt, c.size, c.shape.size())
	}
	return gather(c.shape, start, count, func(off, n uint64) ([]byte, error) {
		if !allocated {
			return nil, nil
		}
		return c.r.At(int64(c.addr + off)).ReadBytes(int(n))
	})
}
