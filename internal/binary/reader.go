package binary

import "io"

// Reader decodes fields from an io.ReaderAt starting at a movable position.
// Readers are cheap values; At and WithSizes fork an independent cursor.
type Reader struct {
	cursor
	src io.ReaderAt
}

func NewReader(r io.ReaderAt, cfg Config) *Reader {
	return &Reader{cursor: newCursor(cfg), src: r}
}

// At returns a copy of r positioned at offset.
func (r *Reader) At(offset int64) *Reader {
	c := *r
	c.pos = offset
	return &c
}

// WithSizes returns a copy of r using the given field widths.
func (r *Reader) WithSizes(offsetSize, lengthSize int) *Reader {
	c := *r
	c.offsetSize, c.lengthSize = offsetSize, lengthSize
	return &c
}

// Peek returns the next n bytes without consuming them.
func (r *Reader) Peek(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := r.src.ReadAt(b, r.pos); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadBytes consumes exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.Peek(n)
	if err == nil {
		r.pos += int64(len(b))
	}
	return b, err
}

// ReadUintN consumes an n-byte unsigned integer.
func (r *Reader) ReadUintN(n int) (uint64, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return r.decode(b), nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	v, err := r.ReadUintN(1)
	return uint8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadUintN(2)
	return uint16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadUintN(4)
	return uint32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	return r.ReadUintN(8)
}

// ReadOffset consumes a file address.
func (r *Reader) ReadOffset() (uint64, error) { return r.ReadUintN(r.offsetSize) }

// ReadLength consumes a length field.
func (r *Reader) ReadLength() (uint64, error) { return r.ReadUintN(r.lengthSize) }

// IsUndefinedOffset reports whether v is the unset-address sentinel.
func (r *Reader) IsUndefinedOffset(v uint64) bool { return v == Undefined(r.offsetSize) }

// IsUndefinedLength reports whether v is the unset-length sentinel.
func (r *Reader) IsUndefinedLength(v uint64) bool { return v == Undefined(r.lengthSize) }
