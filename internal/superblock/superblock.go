// Package superblock reads and writes the HDF5 superblock, the fixed-size
// record that locates the root group and states the width of file
// addresses.
//
// Versions 0 through 3 are read. Files are always written with a version 3
// superblock, which carries a lookup3 checksum and no free-space or driver
// information.
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/go-audata/internal/binary"
)

// Signature opens every superblock.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrInvalidSuperblock  = errors.New("invalid superblock structure")
)

// maxSearch bounds the user block sizes searched for a signature.
const maxSearch = 1 << 30

// Superblock holds the fields of any superblock version that the rest of
// the module needs.
type Superblock struct {
	Version    uint8
	OffsetSize uint8
	LengthSize uint8
	Flags      uint8

	BaseAddress      uint64
	ExtensionAddress uint64
	EOFAddress       uint64
	RootGroupAddress uint64

	// Version 0 and 1 superblocks cache the root group's symbol table in
	// the scratch pad of its entry. Both are zero when absent.
	RootGroupBTreeAddress     uint64
	RootGroupLocalHeapAddress uint64

	// FileOffset is where the signature was found.
	FileOffset int64
}

// New returns the superblock written for new files.
func New() *Superblock {
	return &Superblock{Version: 3, OffsetSize: 8, LengthSize: 8}
}

// Read finds and decodes the superblock. The signature is looked for at
// offset 0 and then at every power of two from 512.
func Read(r io.ReaderAt) (*Superblock, error) {
	sig := make([]byte, len(Signature)+1)
	for off := int64(0); off <= maxSearch; off = nextProbe(off) {
		if _, err := r.ReadAt(sig, off); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if !bytes.Equal(sig[:len(Signature)], Signature) {
			continue
		}
		sb, err := decode(r, off, sig[len(Signature)])
		if err != nil {
			return nil, err
		}
		sb.FileOffset = off
		return sb, nil
	}
	return nil, ErrNotHDF5
}

func nextProbe(off int64) int64 {
	if off == 0 {
		return 512
	}
	return off * 2
}

func decode(r io.ReaderAt, off int64, version uint8) (*Superblock, error) {
	br := binpkg.NewReader(r, binpkg.DefaultConfig()).At(off + int64(len(Signature)) + 1)
	sb := &Superblock{Version: version}
	var err error
	switch version {
	case 0, 1:
		err = sb.decodeV0(br)
	case 2, 3:
		err = sb.decodeV2(r, br, off)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if err != nil {
		return nil, fmt.Errorf("reading version %d superblock: %w", version, err)
	}
	return sb, nil
}

// decodeV0 reads versions 0 and 1, which differ only by the indexed storage
// K value and its padding.
func (sb *Superblock) decodeV0(r *binpkg.Reader) error {
	// Free-space, root entry and shared header versions, reserved byte.
	r.Skip(4)
	if err := sb.decodeSizes(r); err != nil {
		return err
	}
	// Reserved, group leaf and internal K, consistency flags.
	r.Skip(1 + 2 + 2 + 4)
	if sb.Version == 1 {
		r.Skip(4)
	}
	r = r.WithSizes(int(sb.OffsetSize), int(sb.LengthSize))

	var freeSpace, driver uint64
	for _, dst := range []*uint64{&sb.BaseAddress, &freeSpace, &sb.EOFAddress, &driver} {
		if err := readOffset(r, dst); err != nil {
			return err
		}
	}

	// Root group symbol table entry: name offset, header address, cache
	// type, reserved, 16 byte scratch pad.
	r.Skip(int64(sb.OffsetSize))
	if err := readOffset(r, &sb.RootGroupAddress); err != nil {
		return err
	}
	cache, err := r.ReadUint32()
	if err != nil {
		return err
	}
	r.Skip(4)
	if cache == 1 {
		if err := readOffset(r, &sb.RootGroupBTreeAddress); err != nil {
			return err
		}
		return readOffset(r, &sb.RootGroupLocalHeapAddress)
	}
	return nil
}

func (sb *Superblock) decodeV2(src io.ReaderAt, r *binpkg.Reader, start int64) error {
	if err := sb.decodeSizes(r); err != nil {
		return err
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return err
	}
	sb.Flags = flags
	r = r.WithSizes(int(sb.OffsetSize), int(sb.LengthSize))
	for _, dst := range []*uint64{&sb.BaseAddress, &sb.ExtensionAddress, &sb.EOFAddress, &sb.RootGroupAddress} {
		if err := readOffset(r, dst); err != nil {
			return err
		}
	}
	stored, err := r.ReadUint32()
	if err != nil {
		return err
	}
	body := make([]byte, r.Pos()-4-start)
	if _, err := src.ReadAt(body, start); err != nil {
		return err
	}
	if sum := binpkg.Lookup3Checksum(body); sum != stored {
		return fmt.Errorf("%w: checksum 0x%08x, computed 0x%08x", ErrInvalidSuperblock, stored, sum)
	}
	return nil
}

func (sb *Superblock) decodeSizes(r *binpkg.Reader) error {
	sizes, err := r.ReadBytes(2)
	if err != nil {
		return err
	}
	sb.OffsetSize, sb.LengthSize = sizes[0], sizes[1]
	for _, s := range sizes {
		if s != 2 && s != 4 && s != 8 {
			return fmt.Errorf("%w: %w: %d", ErrInvalidSuperblock, binpkg.ErrInvalidSize, s)
		}
	}
	return nil
}

func readOffset(r *binpkg.Reader, dst *uint64) (err error) {
	*dst, err = r.ReadOffset()
	return err
}

// ReaderConfig is the field layout of the rest of the file.
func (sb *Superblock) ReaderConfig() binpkg.Config {
	return binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}

// Size is the encoded size of a version 2 or 3 superblock.
func (sb *Superblock) Size() int {
	o := int(sb.OffsetSize)
	if o == 0 {
		o = 8
	}
	return len(Signature) + 4 + 4*o + 4
}

// Write encodes sb as a version 3 superblock at w's position, or version 2
// when sb says so. An unset extension address is written as undefined.
func (sb *Superblock) Write(w *binpkg.Writer) (int64, error) {
	buf := make([]byte, 0, sb.Size())
	buf = append(buf, Signature...)
	buf = append(buf, max(sb.Version, 2), sb.OffsetSize, sb.LengthSize, sb.Flags)

	ext := sb.ExtensionAddress
	if ext == 0 {
		ext = binpkg.Undefined(int(sb.OffsetSize))
	}
	o := int(sb.OffsetSize)
	for _, v := range []uint64{sb.BaseAddress, ext, sb.EOFAddress, sb.RootGroupAddress} {
		field := make([]byte, o)
		binpkg.PutUintLE(field, v, o)
		buf = append(buf, field...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, binpkg.Lookup3Checksum(buf))

	if err := w.WriteBytes(buf); err != nil {
		return 0, err
	}
	return int64(len(buf)), nil
}
