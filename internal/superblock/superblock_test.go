package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/go-audata/internal/binary"
)

type sink struct{ b []byte }

func (s *sink) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(s.b) {
		s.b = append(s.b, make([]byte, end-len(s.b))...)
	}
	return copy(s.b[off:], p), nil
}

func TestWriteRead(t *testing.T) {
	sb := New()
	sb.EOFAddress = 4096
	sb.RootGroupAddress = 48

	var s sink
	n, err := sb.Write(binpkg.NewWriter(&s, binpkg.DefaultConfig()))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if sb.Size() != 48 || int(n) != sb.Size() {
		t.Errorf("size: wrote %d, Size() %d, want 48", n, sb.Size())
	}

	got, err := Read(bytes.NewReader(s.b))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Version != 3 {
		t.Errorf("version: got %d, want 3", got.Version)
	}
	if got.OffsetSize != 8 {
		t.Errorf("offset size: got %d, want 8", got.OffsetSize)
	}
	if got.EOFAddress != 4096 {
		t.Errorf("EOF: got %d, want 4096", got.EOFAddress)
	}
	if got.RootGroupAddress != 48 {
		t.Errorf("root group: got %d, want 48", got.RootGroupAddress)
	}
	if got.ExtensionAddress != binpkg.Undefined(8) {
		t.Errorf("extension: got 0x%x, want undefined", got.ExtensionAddress)
	}
	if got.ReaderConfig() != binpkg.DefaultConfig() {
		t.Errorf("reader config: got %+v", got.ReaderConfig())
	}
}

func TestUserBlock(t *testing.T) {
	var s sink
	if _, err := New().Write(binpkg.NewWriter(&s, binpkg.DefaultConfig()).At(1024)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := Read(bytes.NewReader(s.b))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.FileOffset != 1024 {
		t.Errorf("file offset: got %d, want 1024", got.FileOffset)
	}
}

func TestChecksum(t *testing.T) {
	var s sink
	if _, err := New().Write(binpkg.NewWriter(&s, binpkg.DefaultConfig())); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	s.b[20] ^= 1

	if _, err := Read(bytes.NewReader(s.b)); !errors.Is(err, ErrInvalidSuperblock) {
		t.Errorf("expected ErrInvalidSuperblock, got %v", err)
	}
}

func TestNotHDF5(t *testing.T) {
	for _, data := range [][]byte{make([]byte, 4096), nil} {
		if _, err := Read(bytes.NewReader(data)); !errors.Is(err, ErrNotHDF5) {
			t.Errorf("%d bytes: expected ErrNotHDF5, got %v", len(data), err)
		}
	}
}

func TestUnsupported(t *testing.T) {
	b := append(append([]byte{}, Signature...), 7)
	if _, err := Read(bytes.NewReader(append(b, make([]byte, 64)...))); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("version 7: expected ErrUnsupportedVersion, got %v", err)
	}

	// Version 2 with a 3-byte offset size
	b = append(append([]byte{}, Signature...), 2, 3, 8, 0)
	if _, err := Read(bytes.NewReader(append(b, make([]byte, 64)...))); !errors.Is(err, ErrInvalidSuperblock) {
		t.Errorf("bad sizes: expected ErrInvalidSuperblock, got %v", err)
	}
}

// v0 lays out a version 0 or 1 superblock whose root entry caches a symbol
// table.
func v0(version uint8) []byte {
	var b bytes.Buffer
	b.Write(Signature)
	b.Write([]byte{version, 0, 0, 0, 0, 8, 8, 0})
	binary.Write(&b, binary.LittleEndian, []uint16{4, 16})
	binary.Write(&b, binary.LittleEndian, uint32(0))
	if version == 1 {
		binary.Write(&b, binary.LittleEndian, []uint16{32, 0})
	}
	// Base, free space, EOF, driver.
	binary.Write(&b, binary.LittleEndian, []uint64{0, ^uint64(0), 2048, ^uint64(0)})
	// Root entry: name offset, header, cache type, reserved, scratch pad.
	binary.Write(&b, binary.LittleEndian, []uint64{0, 96})
	binary.Write(&b, binary.LittleEndian, []uint32{1, 0})
	binary.Write(&b, binary.LittleEndian, []uint64{136, 680})
	return b.Bytes()
}

func TestReadV0V1(t *testing.T) {
	for _, version := range []uint8{0, 1} {
		sb, err := Read(bytes.NewReader(v0(version)))
		if err != nil {
			t.Fatalf("version %d: Read failed: %v", version, err)
		}
		if sb.Version != version {
			t.Errorf("version: got %d, want %d", sb.Version, version)
		}
		if sb.EOFAddress != 2048 {
			t.Errorf("v%d EOF: got %d, want 2048", version, sb.EOFAddress)
		}
		if sb.RootGroupAddress != 96 {
			t.Errorf("v%d root header: got %d, want 96", version, sb.RootGroupAddress)
		}
		if sb.RootGroupBTreeAddress != 136 {
			t.Errorf("v%d root B-tree: got %d, want 136", version, sb.RootGroupBTreeAddress)
		}
		if sb.RootGroupLocalHeapAddress != 680 {
			t.Errorf("v%d root heap: got %d, want 680", version, sb.RootGroupLocalHeapAddress)
		}
	}
}
