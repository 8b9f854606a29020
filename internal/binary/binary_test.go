package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// buffer is a growable io.ReaderAt and io.WriterAt.
type buffer struct{ b []byte }

func (s *buffer) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(s.b) {
		s.b = append(s.b, make([]byte, end-len(s.b))...)
	}
	return copy(s.b[off:], p), nil
}

func (s *buffer) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(s.b).ReadAt(p, off)
}

func TestUndefined(t *testing.T) {
	tests := []struct {
		size int
		want uint64
	}{
		{2, 0xffff},
		{3, 0xffffff},
		{4, 0xffffffff},
		{8, ^uint64(0)},
	}
	for _, tt := range tests {
		if got := Undefined(tt.size); got != tt.want {
			t.Errorf("Undefined(%d) = 0x%x, want 0x%x", tt.size, got, tt.want)
		}
	}
}

func TestUintLE(t *testing.T) {
	b := make([]byte, 5)
	PutUintLE(b, 0x0102030405, 5)
	if !bytes.Equal(b, []byte{5, 4, 3, 2, 1}) {
		t.Errorf("PutUintLE: got %v", b)
	}
	if v := UintLE(b, 5); v != 0x0102030405 {
		t.Errorf("UintLE(5) = 0x%x, want 0x0102030405", v)
	}
	if v := UintLE(b, 2); v != 0x0405 {
		t.Errorf("UintLE(2) = 0x%x, want 0x0405", v)
	}
}

func TestWriteThenRead(t *testing.T) {
	for _, cfg := range []Config{
		DefaultConfig(),
		{ByteOrder: binary.BigEndian, OffsetSize: 4, LengthSize: 2},
	} {
		var buf buffer
		w := NewWriter(&buf, cfg)
		for _, err := range []error{
			w.WriteUint8(0xab),
			w.WriteUint16(0x1234),
			w.WriteUint32(0xdeadbeef),
			w.WriteUint64(0x0102030405060708),
			w.WriteOffset(0x4000),
			w.WriteLength(77),
			w.WriteUndefinedOffset(),
			w.WriteUintN(0x0a0b0c, 3),
			w.WriteBytes([]byte("OHDR")),
		} {
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}
		}
		end := w.Pos()

		r := NewReader(&buf, cfg)
		u8, _ := r.ReadUint8()
		u16, _ := r.ReadUint16()
		u32, _ := r.ReadUint32()
		u64, _ := r.ReadUint64()
		off, _ := r.ReadOffset()
		length, _ := r.ReadLength()
		undef, _ := r.ReadOffset()
		odd, _ := r.ReadUintN(3)
		sig, err := r.ReadBytes(4)
		if err != nil {
			t.Fatalf("ReadBytes failed: %v", err)
		}

		if u8 != 0xab {
			t.Errorf("uint8: got 0x%02x", u8)
		}
		if u16 != 0x1234 {
			t.Errorf("uint16: got 0x%04x", u16)
		}
		if u32 != 0xdeadbeef {
			t.Errorf("uint32: got 0x%08x", u32)
		}
		if u64 != 0x0102030405060708 {
			t.Errorf("uint64: got 0x%016x", u64)
		}
		if off != 0x4000 {
			t.Errorf("offset: got 0x%x", off)
		}
		if length != 77 {
			t.Errorf("length: got %d", length)
		}
		if !r.IsUndefinedOffset(undef) {
			t.Errorf("offset 0x%x should be undefined for size %d", undef, cfg.OffsetSize)
		}
		if odd != 0x0a0b0c {
			t.Errorf("uint24: got 0x%06x", odd)
		}
		if string(sig) != "OHDR" {
			t.Errorf("signature: got %q", sig)
		}
		if r.Pos() != end {
			t.Errorf("reader ended at %d, writer at %d", r.Pos(), end)
		}
	}
}

func TestByteOrder(t *testing.T) {
	var buf buffer
	w := NewWriter(&buf, Config{ByteOrder: binary.BigEndian, OffsetSize: 8, LengthSize: 8})
	if err := w.WriteUint32(0x01020304); err != nil {
		t.Fatalf("WriteUint32 failed: %v", err)
	}
	if !bytes.Equal(buf.b, []byte{1, 2, 3, 4}) {
		t.Errorf("big-endian bytes: got %v", buf.b)
	}
	if w.ByteOrder() != binary.BigEndian {
		t.Errorf("ByteOrder: got %v", w.ByteOrder())
	}
}

func TestCursorsAreIndependent(t *testing.T) {
	buf := buffer{b: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	r := NewReader(&buf, DefaultConfig())
	r.Skip(2)

	fork := r.At(6)
	v, err := fork.ReadUint8()
	if err != nil {
		t.Fatalf("ReadUint8 failed: %v", err)
	}
	if v != 7 {
		t.Errorf("fork read: got %d, want 7", v)
	}
	if r.Pos() != 2 {
		t.Errorf("parent moved to %d", r.Pos())
	}

	narrow := r.WithSizes(2, 4)
	if narrow.OffsetSize() != 2 || narrow.LengthSize() != 4 {
		t.Errorf("WithSizes: got offset %d length %d", narrow.OffsetSize(), narrow.LengthSize())
	}
	if r.OffsetSize() != 8 {
		t.Errorf("parent offset size changed to %d", r.OffsetSize())
	}
	if narrow.Pos() != 2 {
		t.Errorf("WithSizes position: got %d, want 2", narrow.Pos())
	}

	peek, err := r.Peek(2)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if !bytes.Equal(peek, []byte{3, 4}) {
		t.Errorf("Peek: got %v", peek)
	}
	if r.Pos() != 2 {
		t.Errorf("Peek moved the cursor to %d", r.Pos())
	}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		pos, to, want int64
	}{
		{0, 8, 0}, {1, 8, 8}, {8, 8, 8}, {9, 4, 12}, {5, 1, 5}, {5, 0, 5},
	}
	for _, tt := range tests {
		r := NewReader(&buffer{}, DefaultConfig()).At(tt.pos)
		r.Align(tt.to)
		if r.Pos() != tt.want {
			t.Errorf("align %d to %d: got %d, want %d", tt.pos, tt.to, r.Pos(), tt.want)
		}
	}
}

func TestPaddingAndZeros(t *testing.T) {
	var buf buffer
	w := NewWriter(&buf, DefaultConfig())
	if err := w.WriteBytes([]byte{9, 9, 9}); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}
	if err := w.WritePadding(8); err != nil {
		t.Fatalf("WritePadding failed: %v", err)
	}
	if w.Pos() != 8 {
		t.Errorf("after padding: got %d, want 8", w.Pos())
	}
	if err := w.WriteZeros(2); err != nil {
		t.Fatalf("WriteZeros failed: %v", err)
	}
	if err := w.WriteZeros(0); err != nil {
		t.Fatalf("WriteZeros(0) failed: %v", err)
	}
	if want := []byte{9, 9, 9, 0, 0, 0, 0, 0, 0, 0}; !bytes.Equal(buf.b, want) {
		t.Errorf("bytes: got %v, want %v", buf.b, want)
	}
}

func TestShortRead(t *testing.T) {
	r := NewReader(&buffer{b: []byte{1, 2}}, DefaultConfig())
	if _, err := r.ReadUint32(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if r.Pos() != 0 {
		t.Errorf("failed read moved the cursor to %d", r.Pos())
	}
}

func TestLookup3Checksum(t *testing.T) {
	if got := Lookup3Checksum(nil); got != 0xdeadbeef {
		t.Errorf("empty input: got 0x%08x, want 0xdeadbeef", got)
	}
	if got := Lookup3Checksum([]byte("Four score and seven years ago")); got != 0x17770551 {
		t.Errorf("known vector: got 0x%08x, want 0x17770551", got)
	}

	// Every tail length hits a different branch
	seen := make(map[uint32]bool)
	for n := 0; n <= 25; n++ {
		seen[Lookup3Checksum(bytes.Repeat([]byte{0x5a}, n))] = true
	}
	if len(seen) != 26 {
		t.Errorf("distinct checksums: got %d, want 26", len(seen))
	}
}

func TestFletcher32(t *testing.T) {
	if got := Fletcher32(nil); got != 0 {
		t.Errorf("empty input: got 0x%08x", got)
	}
	// One word 0x0102: sum1 = 0x0102, sum2 = 0x0102.
	if got := Fletcher32([]byte{1, 2}); got != 0x01020102 {
		t.Errorf("one word: got 0x%08x, want 0x01020102", got)
	}
	// A trailing byte is the high half of a zero-padded word.
	if Fletcher32([]byte{1, 2, 3, 0}) != Fletcher32([]byte{1, 2, 3}) {
		t.Error("odd length should pad with zero")
	}
	if Fletcher32([]byte{1, 2}) == Fletcher32([]byte{2, 1}) {
		t.Error("byte order should change the checksum")
	}
}
