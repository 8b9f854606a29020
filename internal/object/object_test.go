package object

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/message"
)

func newIO() (*sink, *binary.Writer, func() *binary.Reader) {
	s := &sink{}
	w := binary.NewWriter(s, binary.DefaultConfig())
	return s, w, func() *binary.Reader {
		return binary.NewReader(bytes.NewReader(s.b), binary.DefaultConfig())
	}
}

func TestWriteRead(t *testing.T) {
	s, w, reader := newIO()
	msgs := append(GroupMessages(), message.NewHardLink("data", 4096))
	n, err := Write(w.At(64), msgs, 0)
	require.NoError(t, err)
	assert.EqualValues(t, Size(w, msgs, 0), n)
	assert.Len(t, s.b, 64+int(n))

	h, err := Read(reader(), 64)
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.Version)
	assert.EqualValues(t, n, h.Size)
	assert.False(t, h.Continued)
	require.Len(t, h.Raw, 3)
	assert.Equal(t, message.TypeLink, h.Raw[2].Type())

	link, ok := h.GetMessage(message.TypeLink).(*message.Link)
	require.True(t, ok)
	assert.Equal(t, "data", link.Name)
	assert.EqualValues(t, 4096, link.ObjectAddress)
	assert.Nil(t, h.Dataspace())
}

func TestPadding(t *testing.T) {
	_, w, reader := newIO()
	msgs := GroupMessages()
	used, err := messagesSize(w, msgs)
	require.NoError(t, err)

	_, err = Write(w, msgs, MinChunk)
	require.NoError(t, err)
	h, err := Read(reader(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, MinChunk, h.ChunkSize)
	assert.Len(t, h.Raw, 2, "padding is not a message")

	// A one-byte gap cannot hold a NIL message, so the chunk grows.
	assert.Equal(t, used+nilPrefix, chunkSize(used, used+1))
	assert.Equal(t, used, chunkSize(used, 0))
}

func TestLargeChunkSizeField(t *testing.T) {
	_, w, reader := newIO()
	_, err := Write(w, GroupMessages(), 70000)
	require.NoError(t, err)
	h, err := Read(reader(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 70000, h.ChunkSize)
	assert.Equal(t, 4, sizeField(70000))
}

func TestChecksum(t *testing.T) {
	s, w, reader := newIO()
	_, err := Write(w, GroupMessages(), 0)
	require.NoError(t, err)
	s.b[10] ^= 0xff

	_, err = Read(reader(), 0)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestRewriteInPlace(t *testing.T) {
	_, w, reader := newIO()
	msgs := GroupMessages()
	_, err := Write(w, msgs, Slack(w, msgs, 64))
	require.NoError(t, err)
	h, err := Read(reader(), 0)
	require.NoError(t, err)

	grown := append(GroupMessages(), message.NewHardLink("x", 1024))
	require.True(t, Fits(w, grown, h.ChunkSize))
	require.NoError(t, Rewrite(w, 0, h.ChunkSize, grown))

	again, err := Read(reader(), 0)
	require.NoError(t, err)
	assert.Equal(t, h.ChunkSize, again.ChunkSize)
	assert.Len(t, again.Raw, 3)

	var many []message.Message
	for range 20 {
		many = append(many, message.NewHardLink("a-rather-long-link-name", 1))
	}
	assert.False(t, Fits(w, many, h.ChunkSize))
	assert.ErrorIs(t, Rewrite(w, 0, h.ChunkSize, many), ErrInvalidHeader)
}

func TestRawMessagesRoundTrip(t *testing.T) {
	_, w, reader := newIO()
	_, err := Write(w, append(GroupMessages(), message.NewHardLink("x", 8)), 0)
	require.NoError(t, err)
	h, err := Read(reader(), 0)
	require.NoError(t, err)

	raws := make([]message.Message, len(h.Raw))
	for i, r := range h.Raw {
		raws[i] = r
	}
	_, err = Write(w.At(512), raws, 0)
	require.NoError(t, err)
	copied, err := Read(reader(), 512)
	require.NoError(t, err)
	assert.Equal(t, h.Raw, copied.Raw)
}

// v1Header builds a version 1 header holding one symbol table message,
// optionally moved into a continuation block at 256.
func v1Header(continued bool) []byte {
	le := func(v uint64, n int) []byte {
		b := make([]byte, n)
		binary.PutUintLE(b, v, n)
		return b
	}
	symtab := append(le(0x11, 2), le(16, 2)...)
	symtab = append(symtab, 0, 0, 0, 0)
	symtab = append(symtab, le(800, 8)...)
	symtab = append(symtab, le(900, 8)...)

	body := symtab
	if continued {
		body = append(append(le(0x10, 2), le(16, 2)...), 0, 0, 0, 0)
		body = append(body, le(256, 8)...)
		body = append(body, le(uint64(len(symtab)), 8)...)
	}
	buf := []byte{1, 0}
	buf = append(buf, le(1, 2)...)
	buf = append(buf, le(1, 4)...)
	buf = append(buf, le(uint64(len(body)), 4)...)
	buf = append(buf, 0, 0, 0, 0)
	buf = append(buf, body...)
	if continued {
		buf = append(buf, make([]byte, 256-len(buf))...)
		buf = append(buf, symtab...)
	}
	return buf
}

func TestReadV1(t *testing.T) {
	for _, continued := range []bool{false, true} {
		r := binary.NewReader(bytes.NewReader(v1Header(continued)), binary.DefaultConfig())
		h, err := Read(r, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 1, h.Version)
		assert.Equal(t, continued, h.Continued)
		st, ok := h.GetMessage(message.TypeSymbolTable).(*message.SymbolTable)
		require.True(t, ok)
		assert.EqualValues(t, 800, st.BTreeAddress)
		assert.EqualValues(t, 900, st.LocalHeapAddress)
	}
}

func TestReadGarbage(t *testing.T) {
	r := binary.NewReader(bytes.NewReader([]byte{9, 9, 9, 9, 9, 9}), binary.DefaultConfig())
	_, err := Read(r, 0)
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = Read(r, 100)
	assert.Error(t, err)

	bad := []byte("OHDR\x03\x00\x00\x00\x00\x00")
	_, err = Read(binary.NewReader(bytes.NewReader(bad), binary.DefaultConfig()), 0)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDatasetMessages(t *testing.T) {
	space := message.NewDataspace([]uint64{3}, nil)
	msgs := DatasetMessages(space, message.NewFloatDatatype(8, message.OrderLE), message.NewContiguousLayout(0, 24))
	_, w, reader := newIO()
	_, err := Write(w, msgs, 0)
	require.NoError(t, err)
	h, err := Read(reader(), 0)
	require.NoError(t, err)
	require.NotNil(t, h.Dataspace())
	assert.Equal(t, []uint64{3}, h.Dataspace().Dimensions)
	require.NotNil(t, h.Datatype())
	require.NotNil(t, h.DataLayout())
	assert.Nil(t, h.FilterPipeline())
	assert.Len(t, h.GetMessages(message.TypeDatatype), 1)
	fill := h.GetMessages(message.TypeFillValue)
	require.Len(t, fill, 1)
	assert.EqualValues(t, message.AllocIncremental, fill[0].(*message.FillValue).SpaceAllocTime)
}
