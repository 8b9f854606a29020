package message

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// ErrTruncated reports a message body shorter than its fields.
var ErrTruncated = errors.New("truncated message")

// undefinedAddress is written truncated to the file's offset size.
const undefinedAddress = ^uint64(0)

// decoder walks a message body. The first overrun is remembered and every
// later read returns zeros, so parsers check err once at the end.
type decoder struct {
	b          []byte
	pos        int
	offsetSize int
	lengthSize int
	what       string
	err        error
}

func newDecoder(data []byte, r *binary.Reader, what string) *decoder {
	d := &decoder{b: data, offsetSize: 8, lengthSize: 8, what: what}
	if r != nil {
		d.offsetSize, d.lengthSize = r.OffsetSize(), r.LengthSize()
	}
	return d
}

// sub decodes a nested body of n bytes with the same sizes.
func (d *decoder) sub(n int, what string) *decoder {
	return &decoder{b: d.take(n), offsetSize: d.offsetSize, lengthSize: d.lengthSize, what: what}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return make([]byte, max(n, 0))
	}
	if n < 0 || n > len(d.b)-d.pos {
		d.err = fmt.Errorf("%w: %s needs %d bytes at %d of %d", ErrTruncated, d.what, n, d.pos, len(d.b))
		return make([]byte, max(n, 0))
	}
	b := d.b[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) skip(n int)        { d.take(n) }
func (d *decoder) u8() uint8         { return d.take(1)[0] }
func (d *decoder) u16() uint16       { return uint16(d.uint(2)) }
func (d *decoder) u32() uint32       { return uint32(d.uint(4)) }
func (d *decoder) uint(n int) uint64 { return binary.UintLE(d.take(n), n) }
func (d *decoder) offset() uint64    { return d.uint(d.offsetSize) }
func (d *decoder) length() uint64    { return d.uint(d.lengthSize) }
func (d *decoder) remaining() int    { return len(d.b) - d.pos }

// failf records a format error unless an earlier one is pending.
func (d *decoder) failf(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

// name reads a NUL-terminated string, padded to eight bytes when pad8 is
// set.
func (d *decoder) name(pad8 bool) string {
	start := d.pos
	s := d.cstring()
	if n := d.pos - start; pad8 && n%8 != 0 {
		d.skip(8 - n%8)
	}
	return s
}

// rest consumes and copies whatever is left.
func (d *decoder) rest() []byte {
	if d.err != nil || d.remaining() == 0 {
		return nil
	}
	return append([]byte(nil), d.take(d.remaining())...)
}

// cstring reads a NUL-terminated string.
func (d *decoder) cstring() string {
	if d.err != nil {
		return ""
	}
	for i := d.pos; i < len(d.b); i++ {
		if d.b[i] == 0 {
			s := string(d.b[d.pos:i])
			d.pos = i + 1
			return s
		}
	}
	d.err = fmt.Errorf("%w: %s has an unterminated string", ErrTruncated, d.what)
	return ""
}

// padded reads a NUL-padded field of n bytes.
func (d *decoder) padded(n int) string {
	b := d.take(n)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// align skips to the next multiple of n bytes from the start of the body.
func (d *decoder) align(n int) {
	if r := d.pos % n; r != 0 {
		d.skip(n - r)
	}
}

// encoder builds a message body in memory.
type encoder struct {
	b          []byte
	offsetSize int
	lengthSize int
}

func newEncoder(w *binary.Writer) *encoder {
	e := &encoder{offsetSize: 8, lengthSize: 8}
	if w != nil {
		e.offsetSize, e.lengthSize = w.OffsetSize(), w.LengthSize()
	}
	return e
}

// nested starts an encoder for an embedded body.
func (e *encoder) nested() *encoder {
	return &encoder{offsetSize: e.offsetSize, lengthSize: e.lengthSize}
}

func (e *encoder) u8(v uint8)   { e.b = append(e.b, v) }
func (e *encoder) u16(v uint16) { e.uint(uint64(v), 2) }
func (e *encoder) u32(v uint32) { e.uint(uint64(v), 4) }
func (e *encoder) uint(v uint64, n int) {
	e.b = append(e.b, make([]byte, n)...)
	binary.PutUintLE(e.b[len(e.b)-n:], v, n)
}
func (e *encoder) offset(v uint64)  { e.uint(v, e.offsetSize) }
func (e *encoder) length(v uint64)  { e.uint(v, e.lengthSize) }
func (e *encoder) bytes(b []byte)   { e.b = append(e.b, b...) }
func (e *encoder) zeros(n int)      { e.b = append(e.b, make([]byte, n)...) }
func (e *encoder) cstring(s string) { e.b = append(append(e.b, s...), 0) }

// bodyEncoder is a message that can lay out its own body.
type bodyEncoder interface {
	encode(e *encoder)
}

// Serializable is a message that can be written into an object header.
type Serializable interface {
	Message
	Serialize(w *binary.Writer) error
	SerializedSize(w *binary.Writer) int
}

func encodeBody(m bodyEncoder, w *binary.Writer) []byte {
	e := newEncoder(w)
	m.encode(e)
	return e.b
}

func writeBody(m bodyEncoder, w *binary.Writer) error { return w.WriteBytes(encodeBody(m, w)) }
func bodySize(m bodyEncoder, w *binary.Writer) int    { return len(encodeBody(m, w)) }

// uintWidth is the smallest of 1, 2, 4 or 8 bytes that holds v.
func uintWidth(v uint64) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFFFF:
		return 4
	}
	return 8
}

// ascii reports whether s needs no charset beyond US-ASCII.
func ascii(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
