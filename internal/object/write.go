package object

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// MinChunk is the smallest first chunk written, the size h5py gives new
// groups.
const MinChunk = 120

// nilPrefix is the encoded size of a version 2 message prefix.
const nilPrefix = 4

// Write writes a version 2 header at w's position. Its first chunk holds
// msgs followed by NIL messages padding it to at least minChunk bytes.
// It returns the number of bytes written.
func Write(w *binary.Writer, msgs []message.Message, minChunk int) (int64, error) {
	used, err := messagesSize(w, msgs)
	if err != nil {
		return 0, err
	}
	chunk := chunkSize(used, minChunk)
	field := sizeField(chunk)

	buf := &sink{}
	bw := binary.NewWriter(buf, binary.Config{
		ByteOrder:  w.ByteOrder(),
		OffsetSize: w.OffsetSize(),
		LengthSize: w.LengthSize(),
	})
	_ = bw.WriteBytes(signature)
	_ = bw.WriteUint8(2)
	_ = bw.WriteUint8(uint8(bits.TrailingZeros(uint(field))))
	_ = bw.WriteUintN(uint64(chunk), field)
	for _, m := range msgs {
		if err := writeMessage(bw, m); err != nil {
			return 0, err
		}
	}
	for pad := chunk - used; pad > 0; {
		n := min(pad, nilPrefix+math.MaxUint16)
		if rest := pad - n; rest > 0 && rest < nilPrefix {
			n -= nilPrefix
		}
		_ = bw.WriteUint8(uint8(message.TypeNIL))
		_ = bw.WriteUint16(uint16(n - nilPrefix))
		_ = bw.WriteUint8(0)
		_ = bw.WriteZeros(n - nilPrefix)
		pad -= n
	}
	_ = bw.WriteUint32(binary.Lookup3Checksum(buf.b))

	if err := w.WriteBytes(buf.b); err != nil {
		return 0, err
	}
	return int64(len(buf.b)), nil
}

func writeMessage(w *binary.Writer, m message.Message) error {
	s := m.(message.Serializable)
	var flags uint8
	if raw, ok := m.(*RawMessage); ok {
		flags = raw.Flags
	}
	_ = w.WriteUint8(uint8(m.Type()))
	_ = w.WriteUint16(uint16(s.SerializedSize(w)))
	_ = w.WriteUint8(flags)
	return s.Serialize(w)
}

// messagesSize is the encoded size of msgs in a version 2 chunk.
func messagesSize(w *binary.Writer, msgs []message.Message) (int, error) {
	var n int
	for _, m := range msgs {
		s, ok := m.(message.Serializable)
		if !ok {
			return 0, fmt.Errorf("%w: message type %d cannot be written", ErrInvalidHeader, m.Type())
		}
		size := s.SerializedSize(w)
		if size > math.MaxUint16 {
			return 0, fmt.Errorf("%w: message type %d is %d bytes", ErrInvalidHeader, m.Type(), size)
		}
		n += nilPrefix + size
	}
	return n, nil
}

// chunkSize pads used up to minChunk. The padding is a NIL message, so it is
// either empty or at least a message prefix long.
func chunkSize(used, minChunk int) int {
	chunk := max(used, minChunk)
	if pad := chunk - used; pad > 0 && pad < nilPrefix {
		chunk = used + nilPrefix
	}
	return chunk
}

// sizeField is the width of the chunk size field for a chunk of n bytes.
func sizeField(n int) int {
	switch {
	case n <= math.MaxUint8:
		return 1
	case n <= math.MaxUint16:
		return 2
	case uint64(n) <= math.MaxUint32:
		return 4
	}
	return 8
}

// Size is the number of bytes Write produces for msgs and minChunk.
// Messages that cannot be written count as empty.
func Size(w *binary.Writer, msgs []message.Message, minChunk int) int {
	used, _ := messagesSize(w, msgs)
	chunk := chunkSize(used, minChunk)
	return len(signature) + 2 + sizeField(chunk) + chunk + 4
}

// Fits reports whether msgs can replace the contents of a first chunk of
// chunk bytes.
func Fits(w *binary.Writer, msgs []message.Message, chunk uint64) bool {
	used, err := messagesSize(w, msgs)
	if err != nil {
		return false
	}
	return uint64(used) == chunk || uint64(used+nilPrefix) <= chunk
}

// Rewrite replaces the single-chunk version 2 header at addr, keeping its
// chunk size.
func Rewrite(w *binary.Writer, addr, chunk uint64, msgs []message.Message) error {
	if !Fits(w, msgs, chunk) {
		return fmt.Errorf("%w: messages do not fit in a %d byte chunk", ErrInvalidHeader, chunk)
	}
	_, err := Write(w.At(int64(addr)), msgs, int(chunk))
	return err
}

// Slack returns a minimum first chunk that leaves extra bytes free after
// msgs, and never less than MinChunk.
func Slack(w *binary.Writer, msgs []message.Message, extra int) int {
	used, _ := messagesSize(w, msgs)
	return max(used+extra, MinChunk)
}

// GroupMessages are the messages of a new, empty group.
func GroupMessages() []message.Message {
	return []message.Message{message.NewLinkInfo(), message.NewGroupInfo()}
}

// DatasetMessages are the messages of a new dataset.
func DatasetMessages(space *message.Dataspace, typ *message.Datatype, layout *message.DataLayout) []message.Message {
	return []message.Message{space, typ, message.NewFillValue(), layout}
}

// sink is a growable io.WriterAt.
type sink struct{ b []byte }

func (s *sink) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(s.b) {
		s.b = append(s.b, make([]byte, end-len(s.b))...)
	}
	return copy(s.b[off:], p), nil
}
