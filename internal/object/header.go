// Package object reads and writes HDF5 object headers, the per-object lists
// of messages that describe groups and datasets.
//
// Both header versions are read: version 1, used by files with a version 0
// or 1 superblock, and version 2 ("OHDR"), whose chunks carry a checksum.
// Only version 2 headers are written, always as a single chunk padded with a
// NIL message so that later edits can be made in place.
package object

import (
	"errors"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/message"
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksumMismatch   = errors.New("object header checksum mismatch")
)

// Header is a decoded object header.
type Header struct {
	Version uint8
	Address uint64

	// Size is the number of bytes of a version 2 header's first chunk,
	// prefix and checksum included.
	Size uint64

	// ChunkSize is the message capacity of a version 2 header's first chunk.
	ChunkSize uint64

	// Continued is set when some messages live in continuation blocks.
	Continued bool

	// Messages holds the decodable messages in file order.
	Messages []message.Message

	// Raw holds every non-NIL message except continuations as stored bytes.
	// Rewriting a header starts from these.
	Raw []*RawMessage
}

// RawMessage is a header message kept as its stored body.
type RawMessage struct {
	MsgType message.Type
	Flags   uint8
	Data    []byte
}

func (m *RawMessage) Type() message.Type { return m.MsgType }

func (m *RawMessage) Serialize(w *binary.Writer) error { return w.WriteBytes(m.Data) }

func (m *RawMessage) SerializedSize(*binary.Writer) int { return len(m.Data) }

func find[T message.Message](msgs []message.Message) T {
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			return v
		}
	}
	var zero T
	return zero
}

// GetMessage returns the first message of type typ, or nil.
func (h *Header) GetMessage(typ message.Type) message.Message {
	for _, m := range h.Messages {
		if m.Type() == typ {
			return m
		}
	}
	return nil
}

// GetMessages returns every message of type typ.
func (h *Header) GetMessages(typ message.Type) []message.Message {
	var out []message.Message
	for _, m := range h.Messages {
		if m.Type() == typ {
			out = append(out, m)
		}
	}
	return out
}

func (h *Header) Dataspace() *message.Dataspace { return find[*message.Dataspace](h.Messages) }

func (h *Header) Datatype() *message.Datatype { return find[*message.Datatype](h.Messages) }

func (h *Header) DataLayout() *message.DataLayout { return find[*message.DataLayout](h.Messages) }

func (h *Header) FilterPipeline() *message.FilterPipeline {
	return find[*message.FilterPipeline](h.Messages)
}
