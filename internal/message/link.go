package message

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// LinkType is the kind of target a link points at.
type LinkType uint8

const (
	LinkTypeHard     LinkType = 0
	LinkTypeSoft     LinkType = 1
	LinkTypeExternal LinkType = 64
)

// Link flag bits.
const (
	linkNameWidth  = 0x03 // log2 of the name length field width
	linkHasOrder   = 0x04
	linkHasType    = 0x08
	linkHasCharset = 0x10
)

// Link names one member of a new-style group.
type Link struct {
	Version       uint8
	LinkType      LinkType
	CreationOrder uint64
	Name          string
	Charset       uint8

	ObjectAddress uint64 // hard links
	SoftLinkValue string // soft links
	ExternalFile  string // external links
	ExternalPath  string
}

func (m *Link) Type() Type { return TypeLink }

func (m *Link) IsHard() bool     { return m.LinkType == LinkTypeHard }
func (m *Link) IsSoft() bool     { return m.LinkType == LinkTypeSoft }
func (m *Link) IsExternal() bool { return m.LinkType == LinkTypeExternal }

func parseLink(data []byte, r *binary.Reader) (*Link, error) {
	d := newDecoder(data, r, "link")
	m := &Link{Version: d.u8()}
	if m.Version != 1 {
		return nil, fmt.Errorf("unsupported link version %d", m.Version)
	}
	flags := d.u8()
	if flags&linkHasType != 0 {
		m.LinkType = LinkType(d.u8())
	}
	if flags&linkHasOrder != 0 {
		m.CreationOrder = d.uint(8)
	}
	if flags&linkHasCharset != 0 {
		m.Charset = d.u8()
	}
	m.Name = string(d.take(int(d.uint(1 << (flags & linkNameWidth)))))

	switch m.LinkType {
	case LinkTypeHard:
		m.ObjectAddress = d.offset()
	case LinkTypeSoft:
		m.SoftLinkValue = string(d.take(int(d.u16())))
	case LinkTypeExternal:
		// A version and flags byte, then the file and object paths.
		ext := d.sub(int(d.u16()), "external link")
		ext.skip(1)
		m.ExternalFile = ext.cstring()
		m.ExternalPath = ext.cstring()
		if ext.err != nil {
			return nil, ext.err
		}
	default:
		return nil, fmt.Errorf("unsupported link type %d", m.LinkType)
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

func (m *Link) encode(e *encoder) {
	width := uintWidth(uint64(len(m.Name)))
	flags := uint8(0)
	for w := width; w > 1; w >>= 1 {
		flags++
	}
	if m.LinkType != LinkTypeHard {
		flags |= linkHasType
	}
	if !ascii(m.Name) {
		flags |= linkHasCharset
	}

	e.u8(1)
	e.u8(flags)
	if flags&linkHasType != 0 {
		e.u8(uint8(m.LinkType))
	}
	if flags&linkHasCharset != 0 {
		e.u8(uint8(CharsetUTF8))
	}
	e.uint(uint64(len(m.Name)), width)
	e.bytes([]byte(m.Name))

	switch m.LinkType {
	case LinkTypeHard:
		e.offset(m.ObjectAddress)
	case LinkTypeSoft:
		e.u16(uint16(len(m.SoftLinkValue)))
		e.bytes([]byte(m.SoftLinkValue))
	case LinkTypeExternal:
		e.u16(uint16(1 + len(m.ExternalFile) + 1 + len(m.ExternalPath) + 1))
		e.u8(0)
		e.cstring(m.ExternalFile)
		e.cstring(m.ExternalPath)
	}
}

func (m *Link) Serialize(w *binary.Writer) error    { return writeBody(m, w) }
func (m *Link) SerializedSize(w *binary.Writer) int { return bodySize(m, w) }

func NewHardLink(name string, objectAddress uint64) *Link {
	return &Link{Version: 1, LinkType: LinkTypeHard, Name: name, ObjectAddress: objectAddress}
}

func NewSoftLink(name, target string) *Link {
	return &Link{Version: 1, LinkType: LinkTypeSoft, Name: name, SoftLinkValue: target}
}

// NewExternalLink links name to the object at target inside file.
func NewExternalLink(name, file, target string) *Link {
	return &Link{Version: 1, LinkType: LinkTypeExternal, Name: name, ExternalFile: file, ExternalPath: target}
}
