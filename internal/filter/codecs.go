package filter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"

	binpkg "github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// ErrChecksum reports a chunk whose Fletcher-32 checksum does not match.
var ErrChecksum = errors.New("fletcher32 checksum mismatch")

// deflate stores zlib streams. The level comes from the first client value
// and falls back to 6 when it is missing or out of range.
type deflate struct {
	level   int
	writers sync.Pool
}

func newDeflate(cd []uint32) *deflate {
	f := &deflate{level: 6}
	if len(cd) > 0 && cd[0] <= 9 {
		f.level = int(cd[0])
	}
	return f
}

func (f *deflate) ID() uint16 { return message.FilterDeflate }

func (f *deflate) Encode(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, _ := f.writers.Get().(*zlib.Writer)
	if zw == nil {
		var err error
		if zw, err = zlib.NewWriterLevel(&buf, f.level); err != nil {
			return nil, err
		}
	} else {
		zw.Reset(&buf)
	}
	defer f.writers.Put(zw)
	if _, err := zw.Write(in); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *deflate) Decode(in []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

// shuffle transposes a chunk of fixed-size elements so that byte k of
// every element is stored together. A tail shorter than one element stays
// where it is.
type shuffle struct{ size int }

func newShuffle(cd []uint32) shuffle {
	if len(cd) == 0 || cd[0] == 0 {
		return shuffle{size: 1}
	}
	return shuffle{size: int(cd[0])}
}

func (shuffle) ID() uint16 { return message.FilterShuffle }

func (s shuffle) Encode(in []byte) ([]byte, error) { return s.transpose(in, true), nil }
func (s shuffle) Decode(in []byte) ([]byte, error) { return s.transpose(in, false), nil }

func (s shuffle) transpose(in []byte, gather bool) []byte {
	n := len(in) / s.size
	if s.size < 2 || n < 2 {
		return in
	}
	out := make([]byte, len(in))
	for e := range n {
		for k := range s.size {
			packed, plain := k*n+e, e*s.size+k
			if gather {
				out[packed] = in[plain]
			} else {
				out[plain] = in[packed]
			}
		}
	}
	copy(out[n*s.size:], in[n*s.size:])
	return out
}

// fletcher32 appends a checksum of the chunk as four little-endian bytes.
type fletcher32 struct{}

func (fletcher32) ID() uint16 { return message.FilterFletcher32 }

func (fletcher32) Encode(in []byte) ([]byte, error) {
	return binary.LittleEndian.AppendUint32(append([]byte(nil), in...), binpkg.Fletcher32(in)), nil
}

func (fletcher32) Decode(in []byte) ([]byte, error) {
	if len(in) < 4 {
		return nil, fmt.Errorf("%w: %d byte chunk", ErrChecksum, len(in))
	}
	body, sum := in[:len(in)-4], binary.LittleEndian.Uint32(in[len(in)-4:])
	got := binpkg.Fletcher32(body)
	// Some early libhdf5 releases byte-swapped each half of the sum.
	if swapped := got&0x00FF00FF<<8 | got&0xFF00FF00>>8; sum != got && sum != swapped {
		return nil, fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksum, sum, got)
	}
	return body, nil
}
