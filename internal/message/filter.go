package message

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// Registered filter IDs.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
)

// FilterFlagOptional marks a filter whose failure leaves a chunk unfiltered
// instead of failing the write.
const FilterFlagOptional uint16 = 0x01

// filterReserved is the first ID outside the range libhdf5 reserves;
// filters from there on always carry a name.
const filterReserved = 256

// FilterInfo is one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

func (f FilterInfo) IsOptional() bool { return f.Flags&FilterFlagOptional != 0 }

// FilterPipeline lists the filters applied to each chunk, in write order.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

// Version 1 pads names to eight bytes, follows the count with six reserved
// bytes and pads odd client data lists; version 2 drops all of that and
// names only custom filters.
func parseFilterPipeline(data []byte, r *binary.Reader) (*FilterPipeline, error) {
	d := newDecoder(data, r, "filter pipeline")
	m := &FilterPipeline{Version: d.u8()}
	if m.Version != 1 && m.Version != 2 {
		return nil, fmt.Errorf("unsupported filter pipeline version %d", m.Version)
	}
	m.Filters = make([]FilterInfo, d.u8())
	if m.Version == 1 {
		d.skip(6)
	}
	for i := range m.Filters {
		f := &m.Filters[i]
		f.ID = d.u16()
		var nameLen int
		if m.Version == 1 || f.ID >= filterReserved {
			nameLen = int(d.u16())
		}
		f.Flags = d.u16()
		if n := d.u16(); n > 0 {
			f.ClientData = make([]uint32, n)
		}
		if m.Version == 1 {
			nameLen = (nameLen + 7) &^ 7
		}
		f.Name = d.padded(nameLen)
		for j := range f.ClientData {
			f.ClientData[j] = d.u32()
		}
		if m.Version == 1 && len(f.ClientData)%2 == 1 {
			d.skip(4)
		}
		if d.err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, d.err)
		}
	}
	return m, nil
}

// encode always writes version 2.
func (m *FilterPipeline) encode(e *encoder) {
	e.u8(2)
	e.u8(uint8(len(m.Filters)))
	for _, f := range m.Filters {
		e.u16(f.ID)
		if f.ID >= filterReserved {
			e.u16(uint16(len(f.Name) + 1))
		}
		e.u16(f.Flags)
		e.u16(uint16(len(f.ClientData)))
		if f.ID >= filterReserved {
			e.cstring(f.Name)
		}
		for _, v := range f.ClientData {
			e.u32(v)
		}
	}
}

func (m *FilterPipeline) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *FilterPipeline) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

func NewFilterPipeline(filters ...FilterInfo) *FilterPipeline {
	return &FilterPipeline{Version: 2, Filters: filters}
}

// DeflateFilter compresses with zlib at level 0 to 9.
func DeflateFilter(level int) FilterInfo {
	return FilterInfo{ID: FilterDeflate, Flags: FilterFlagOptional, ClientData: []uint32{uint32(level)}}
}

// ShuffleFilter regroups the bytes of elemSize-byte elements by
// significance.
func ShuffleFilter(elemSize uint32) FilterInfo {
	return FilterInfo{ID: FilterShuffle, Flags: FilterFlagOptional, ClientData: []uint32{elemSize}}
}

// Fletcher32Filter appends a checksum to every chunk. It is never optional.
func Fletcher32Filter() FilterInfo {
	return FilterInfo{ID: FilterFletcher32}
}
