package message

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// LinkInfo describes how a new-style group stores its links. Groups that
// keep every link in the header leave both addresses undefined.
type LinkInfo struct {
	Version                uint8
	Flags                  uint8  // 0x01 creation order tracked, 0x02 indexed
	MaxCreationIndex       uint64 // when tracked
	FractalHeapAddr        uint64
	NameIndexBTreeAddr     uint64
	CreationOrderBTreeAddr uint64 // when indexed
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

func parseLinkInfo(data []byte, r *binary.Reader) (*LinkInfo, error) {
	d := newDecoder(data, r, "link info")
	m := &LinkInfo{Version: d.u8(), Flags: d.u8()}
	if m.Version != 0 {
		return nil, fmt.Errorf("unsupported link info version %d", m.Version)
	}
	if m.Flags&0x01 != 0 {
		m.MaxCreationIndex = d.uint(8)
	}
	m.FractalHeapAddr, m.NameIndexBTreeAddr = d.offset(), d.offset()
	if m.Flags&0x02 != 0 {
		m.CreationOrderBTreeAddr = d.offset()
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

func (m *LinkInfo) encode(e *encoder) {
	e.u8(0)
	e.u8(m.Flags)
	if m.Flags&0x01 != 0 {
		e.uint(m.MaxCreationIndex, 8)
	}
	e.offset(m.FractalHeapAddr)
	e.offset(m.NameIndexBTreeAddr)
	if m.Flags&0x02 != 0 {
		e.offset(m.CreationOrderBTreeAddr)
	}
}

func (m *LinkInfo) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *LinkInfo) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

// NewLinkInfo is the link info of a group whose links all live in its
// header.
func NewLinkInfo() *LinkInfo {
	return &LinkInfo{FractalHeapAddr: undefinedAddress, NameIndexBTreeAddr: undefinedAddress}
}

// GroupInfo holds the storage thresholds of a new-style group.
type GroupInfo struct {
	Version         uint8
	Flags           uint8
	MaxCompactLinks uint16 // flags 0x01
	MinDenseLinks   uint16
	EstNumEntries   uint16 // flags 0x02
	EstLinkNameLen  uint16
}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func parseGroupInfo(data []byte, r *binary.Reader) (*GroupInfo, error) {
	d := newDecoder(data, r, "group info")
	m := &GroupInfo{Version: d.u8(), Flags: d.u8()}
	if m.Version != 0 {
		return nil, fmt.Errorf("unsupported group info version %d", m.Version)
	}
	if m.Flags&0x01 != 0 {
		m.MaxCompactLinks, m.MinDenseLinks = d.u16(), d.u16()
	}
	if m.Flags&0x02 != 0 {
		m.EstNumEntries, m.EstLinkNameLen = d.u16(), d.u16()
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

func (m *GroupInfo) encode(e *encoder) {
	e.u8(0)
	e.u8(m.Flags)
	if m.Flags&0x01 != 0 {
		e.u16(m.MaxCompactLinks)
		e.u16(m.MinDenseLinks)
	}
	if m.Flags&0x02 != 0 {
		e.u16(m.EstNumEntries)
		e.u16(m.EstLinkNameLen)
	}
}

func (m *GroupInfo) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *GroupInfo) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

func NewGroupInfo() *GroupInfo { return &GroupInfo{} }
