// Package binary reads and writes the fixed-width fields of an HDF5 file.
//
// Addresses ("offsets") and lengths are stored with the widths declared by the
// superblock, so both Reader and Writer carry those sizes alongside a byte
// order and a cursor position.
package binary

import (
	"encoding/binary"
	"errors"
)

// ErrInvalidSize reports an offset or length width other than 2, 4 or 8.
var ErrInvalidSize = errors.New("invalid offset/length size: must be 2, 4, or 8")

// Config describes the field widths of a file.
type Config struct {
	ByteOrder  binary.ByteOrder
	OffsetSize int
	LengthSize int
}

// DefaultConfig is the layout every file written by this module uses, and
// the one superblock parsing starts from.
func DefaultConfig() Config {
	return Config{ByteOrder: binary.LittleEndian, OffsetSize: 8, LengthSize: 8}
}

// Undefined returns the all-ones value HDF5 uses for an unset address or
// length of the given width.
func Undefined(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(size)) - 1
}

// PutUintLE stores the low size bytes of v in little-endian order.
func PutUintLE(b []byte, v uint64, size int) {
	for i := range size {
		b[i] = byte(v >> (8 * i))
	}
}

// UintLE decodes a size-byte little-endian unsigned integer.
func UintLE(b []byte, size int) uint64 {
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// cursor is the state shared by Reader and Writer.
type cursor struct {
	order      binary.ByteOrder
	offsetSize int
	lengthSize int
	pos        int64
}

func newCursor(cfg Config) cursor {
	return cursor{order: cfg.ByteOrder, offsetSize: cfg.OffsetSize, lengthSize: cfg.LengthSize}
}

func (c *cursor) Pos() int64                  { return c.pos }
func (c *cursor) Skip(n int64)                { c.pos += n }
func (c *cursor) OffsetSize() int             { return c.offsetSize }
func (c *cursor) LengthSize() int             { return c.lengthSize }
func (c *cursor) ByteOrder() binary.ByteOrder { return c.order }

// Align moves the cursor forward to the next multiple of n.
func (c *cursor) Align(n int64) {
	c.pos += c.padding(n)
}

func (c *cursor) padding(n int64) int64 {
	if n <= 1 {
		return 0
	}
	return (n - c.pos%n) % n
}

// decode reads a size-byte unsigned integer. The standard widths honour the
// byte order; odd widths are little-endian.
func (c *cursor) decode(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(c.order.Uint16(b))
	case 4:
		return uint64(c.order.Uint32(b))
	case 8:
		return c.order.Uint64(b)
	}
	return UintLE(b, len(b))
}

func (c *cursor) encode(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		c.order.PutUint16(b, uint16(v))
	case 4:
		c.order.PutUint32(b, uint32(v))
	case 8:
		c.order.PutUint64(b, v)
	default:
		PutUintLE(b, v, len(b))
	}
}
