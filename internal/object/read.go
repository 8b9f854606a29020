package object

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/message"
)

var (
	signature             = []byte("OHDR")
	continuationSignature = []byte("OCHK")
)

// Version 2 prefix flags.
const (
	flagSizeMask      = 0x03
	flagCreationOrder = 0x04
	flagPhaseChange   = 0x10
	flagTimes         = 0x20
)

// maxBlocks bounds the continuation blocks followed for one header, so that
// a cycle in a damaged file cannot loop forever.
const maxBlocks = 4096

// Read decodes the object header at addr.
func Read(r *binary.Reader, addr uint64) (*Header, error) {
	hr := r.At(int64(addr))
	lead, err := hr.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", addr, err)
	}

	h := &Header{Address: addr}
	d := &decoder{r: r, h: h}
	switch {
	case bytes.Equal(lead, signature):
		err = d.readV2(hr)
	case lead[0] == 1:
		err = d.readV1(hr)
	default:
		err = fmt.Errorf("%w: no header signature at %d", ErrInvalidHeader, addr)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

type decoder struct {
	r             *binary.Reader
	h             *Header
	creationOrder bool
	blocks        int
}

// readV1 decodes a version 1 prefix: version, reserved byte, message count,
// reference count and message bytes, padded to 16 bytes.
func (d *decoder) readV1(r *binary.Reader) error {
	d.h.Version = 1
	r.Skip(4)
	r.Skip(4)
	size, err := r.ReadUint32()
	if err != nil {
		return err
	}
	r.Skip(4)
	return d.block(r.Pos(), r.Pos()+int64(size))
}

// readV2 decodes a version 2 prefix and verifies the first chunk checksum.
func (d *decoder) readV2(r *binary.Reader) error {
	start := r.Pos()
	r.Skip(4)
	version, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if version != 2 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return err
	}
	if flags&flagTimes != 0 {
		r.Skip(16)
	}
	if flags&flagPhaseChange != 0 {
		r.Skip(4)
	}
	chunk, err := r.ReadUintN(1 << (flags & flagSizeMask))
	if err != nil {
		return err
	}
	msgStart := r.Pos()
	msgEnd := msgStart + int64(chunk)
	if err := d.verify(start, msgEnd); err != nil {
		return err
	}

	d.h.Version = 2
	d.h.ChunkSize = chunk
	d.h.Size = uint64(msgEnd + 4 - start)
	d.creationOrder = flags&flagCreationOrder != 0
	return d.block(msgStart, msgEnd)
}

// verify checks the lookup3 checksum stored right after [start, end).
func (d *decoder) verify(start, end int64) error {
	buf, err := d.r.At(start).ReadBytes(int(end - start + 4))
	if err != nil {
		return fmt.Errorf("reading header chunk at %d: %w", start, err)
	}
	n := len(buf) - 4
	stored := d.r.ByteOrder().Uint32(buf[n:])
	if sum := binary.Lookup3Checksum(buf[:n]); sum != stored {
		return fmt.Errorf("%w at %d: stored 0x%08x, computed 0x%08x", ErrChecksumMismatch, start, stored, sum)
	}
	return nil
}

// block decodes the messages stored in [start, end).
func (d *decoder) block(start, end int64) error {
	d.blocks++
	if d.blocks > maxBlocks {
		return fmt.Errorf("%w: more than %d continuation blocks", ErrInvalidHeader, maxBlocks)
	}
	br := d.r.At(start)
	for end-br.Pos() >= int64(d.prefixLen()) {
		typ, flags, data, err := d.next(br, end)
		if err != nil {
			return err
		}
		switch typ {
		case message.TypeNIL:
			continue
		case message.TypeObjectHeaderContinuation:
			c, err := message.ParseContinuation(data, br)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidHeader, err)
			}
			d.h.Continued = true
			if err := d.continuation(c); err != nil {
				return err
			}
			continue
		}
		d.h.Raw = append(d.h.Raw, &RawMessage{MsgType: typ, Flags: flags, Data: data})
		// Messages that fail to decode are still carried in Raw.
		if msg, err := message.Parse(typ, data, flags, br); err == nil {
			d.h.Messages = append(d.h.Messages, msg)
		}
	}
	return nil
}

func (d *decoder) continuation(c *message.Continuation) error {
	start, end := int64(c.Offset), int64(c.Offset+c.Length)
	if d.h.Version == 1 {
		return d.block(start, end)
	}
	sig, err := d.r.At(start).ReadBytes(4)
	if err != nil {
		return err
	}
	if !bytes.Equal(sig, continuationSignature) {
		return fmt.Errorf("%w: bad continuation signature %q at %d", ErrInvalidHeader, sig, start)
	}
	if err := d.verify(start, end-4); err != nil {
		return err
	}
	return d.block(start+4, end-4)
}

func (d *decoder) prefixLen() int {
	switch {
	case d.h.Version == 1:
		return 8
	case d.creationOrder:
		return 6
	}
	return 4
}

// next decodes one message prefix and body.
func (d *decoder) next(r *binary.Reader, end int64) (message.Type, uint8, []byte, error) {
	var (
		typ   uint16
		size  uint16
		flags uint8
		err   error
	)
	if d.h.Version == 1 {
		if typ, err = r.ReadUint16(); err != nil {
			return 0, 0, nil, err
		}
	} else {
		var b uint8
		if b, err = r.ReadUint8(); err != nil {
			return 0, 0, nil, err
		}
		typ = uint16(b)
	}
	if size, err = r.ReadUint16(); err != nil {
		return 0, 0, nil, err
	}
	if flags, err = r.ReadUint8(); err != nil {
		return 0, 0, nil, err
	}
	switch {
	case d.h.Version == 1:
		r.Skip(3)
	case d.creationOrder:
		r.Skip(2)
	}
	if r.Pos()+int64(size) > end {
		return 0, 0, nil, fmt.Errorf("%w: message type %d overruns its block", ErrInvalidHeader, typ)
	}
	data, err := r.ReadBytes(int(size))
	return message.Type(typ), flags, data, err
}
