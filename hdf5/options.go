package hdf5

import (
	binpkg "github.com/robert-malhotra/go-audata/internal/binary"
	"github.com/robert-malhotra/go-audata/internal/message"
)

// FileOption adjusts the field widths of a file being created.
type FileOption func(*binpkg.Config)

// WithOffsetSize sets the width of file addresses, 4 or 8 bytes.
func WithOffsetSize(n int) FileOption {
	return func(c *binpkg.Config) {
		if n == 4 || n == 8 {
			c.OffsetSize = n
		}
	}
}

// WithLengthSize sets the width of stored lengths, 4 or 8 bytes.
func WithLengthSize(n int) FileOption {
	return func(c *binpkg.Config) {
		if n == 4 || n == 8 {
			c.LengthSize = n
		}
	}
}

// DefaultChunkRows is the chunk length of tables created without WithChunks.
const DefaultChunkRows = 1024

// DatasetOption configures CreateTable.
type DatasetOption func(*tableSpec)

type stringAttr struct{ name, value string }

// tableSpec collects the storage settings of a new table.
type tableSpec struct {
	chunkRows uint64
	maxRows   uint64 // 0 is unlimited
	deflate   int
	shuffle   bool
	checksum  bool
	attrs     []stringAttr
}

func newTableSpec(opts []DatasetOption) *tableSpec {
	s := &tableSpec{chunkRows: DefaultChunkRows}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *tableSpec) maxDim() uint64 {
	if s.maxRows == 0 {
		return Unlimited
	}
	return s.maxRows
}

// pipeline orders the filters the way h5py does: shuffle, deflate, then
// the checksum. It is nil when none is enabled.
func (s *tableSpec) pipeline(elemSize uint32) *message.FilterPipeline {
	var filters []message.FilterInfo
	if s.shuffle {
		filters = append(filters, message.ShuffleFilter(elemSize))
	}
	if s.deflate > 0 {
		filters = append(filters, message.DeflateFilter(s.deflate))
	}
	if s.checksum {
		filters = append(filters, message.Fletcher32Filter())
	}
	if len(filters) == 0 {
		return nil
	}
	return message.NewFilterPipeline(filters...)
}

// WithChunks sets the rows per chunk.
func WithChunks(rows uint64) DatasetOption {
	return func(s *tableSpec) {
		if rows > 0 {
			s.chunkRows = rows
		}
	}
}

// WithMaxDims caps how far the table may grow; 0 leaves it unlimited.
func WithMaxDims(rows uint64) DatasetOption {
	return func(s *tableSpec) { s.maxRows = rows }
}

// WithCompression sets the deflate level. 0 stores chunks uncompressed and
// levels above 9 are ignored.
func WithCompression(level int) DatasetOption {
	return func(s *tableSpec) {
		if level >= 0 && level <= 9 {
			s.deflate = level
		}
	}
}

func WithShuffle() DatasetOption    { return func(s *tableSpec) { s.shuffle = true } }
func WithFletcher32() DatasetOption { return func(s *tableSpec) { s.checksum = true } }

// WithAttribute attaches a string attribute. Repeating a name replaces the
// earlier value but keeps its position.
func WithAttribute(name, value string) DatasetOption {
	return func(s *tableSpec) {
		for i := range s.attrs {
			if s.attrs[i].name == name {
				s.attrs[i].value = value
				return
			}
		}
		s.attrs = append(s.attrs, stringAttr{name, value})
	}
}
