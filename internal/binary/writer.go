package binary

import "io"

// Writer encodes fields into an io.WriterAt. Like Reader it carries its own
// position, so several writers can target one file.
type Writer struct {
	cursor
	dst io.WriterAt
}

func NewWriter(w io.WriterAt, cfg Config) *Writer {
	return &Writer{cursor: newCursor(cfg), dst: w}
}

// At returns a copy of w positioned at offset.
func (w *Writer) At(offset int64) *Writer {
	c := *w
	c.pos = offset
	return &c
}

// WithSizes returns a copy of w using the given field widths.
func (w *Writer) WithSizes(offsetSize, lengthSize int) *Writer {
	c := *w
	c.offsetSize, c.lengthSize = offsetSize, lengthSize
	return &c
}

// WriteBytes writes b and advances past whatever was written.
func (w *Writer) WriteBytes(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n, err := w.dst.WriteAt(b, w.pos)
	w.pos += int64(n)
	return err
}

// WriteUintN writes v as an n-byte unsigned integer.
func (w *Writer) WriteUintN(v uint64, n int) error {
	b := make([]byte, n)
	w.encode(b, v)
	return w.WriteBytes(b)
}

func (w *Writer) WriteUint8(v uint8) error   { return w.WriteBytes([]byte{v}) }
func (w *Writer) WriteUint16(v uint16) error { return w.WriteUintN(uint64(v), 2) }
func (w *Writer) WriteUint32(v uint32) error { return w.WriteUintN(uint64(v), 4) }
func (w *Writer) WriteUint64(v uint64) error { return w.WriteUintN(v, 8) }

// WriteOffset writes a file address.
func (w *Writer) WriteOffset(v uint64) error { return w.WriteUintN(v, w.offsetSize) }

// WriteLength writes a length field.
func (w *Writer) WriteLength(v uint64) error { return w.WriteUintN(v, w.lengthSize) }

// UndefinedOffset is the unset-address sentinel for this writer's width.
func (w *Writer) UndefinedOffset() uint64 { return Undefined(w.offsetSize) }

// UndefinedLength is the unset-length sentinel for this writer's width.
func (w *Writer) UndefinedLength() uint64 { return Undefined(w.lengthSize) }

func (w *Writer) WriteUndefinedOffset() error { return w.WriteOffset(w.UndefinedOffset()) }

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) error {
	if n <= 0 {
		return nil
	}
	return w.WriteBytes(make([]byte, n))
}

// WritePadding zero-fills up to the next multiple of n.
func (w *Writer) WritePadding(n int64) error {
	return w.WriteZeros(int(w.padding(n)))
}
