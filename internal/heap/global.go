package heap

import (
	"fmt"

	"github.com/robert-malhotra/go-audata/internal/binary"
)

// ID addresses one object of a global heap collection.
type ID struct {
	CollectionAddress uint64
	ObjectIndex       uint32
}

// VlenRef is the stored form of one variable-length element: its length
// and the heap object that holds the bytes.
type VlenRef struct {
	Length uint32
	ID     ID
}

// VlenRefSize is the stored size of a VlenRef.
func VlenRefSize(offsetSize int) int {
	return 4 + offsetSize + 4
}

// PutVlenRef encodes ref as length(4), collection address, object index(4).
func PutVlenRef(buf []byte, ref VlenRef, offsetSize int) {
	binary.PutUintLE(buf[0:4], uint64(ref.Length), 4)
	binary.PutUintLE(buf[4:4+offsetSize], ref.ID.CollectionAddress, offsetSize)
	binary.PutUintLE(buf[4+offsetSize:8+offsetSize], uint64(ref.ID.ObjectIndex), 4)
}

// ParseVlenRef decodes an element written by PutVlenRef.
func ParseVlenRef(data []byte, offsetSize int) (VlenRef, error) {
	if len(data) < VlenRefSize(offsetSize) {
		return VlenRef{}, fmt.Errorf("vlen reference too short: %d bytes", len(data))
	}
	return VlenRef{
		Length: uint32(binary.UintLE(data[0:4], 4)),
		ID: ID{
			CollectionAddress: binary.UintLE(data[4:4+offsetSize], offsetSize),
			ObjectIndex:       uint32(binary.UintLE(data[4+offsetSize:], 4)),
		},
	}, nil
}

// collectionHeader is the size of the GCOL prefix for a length width.
func collectionHeader(lengthSize int) int { return align8(8 + lengthSize) }

// objectHeader is the size of the prefix of each heap object. Both headers
// are padded to eight bytes.
func objectHeader(lengthSize int) int { return align8(8 + lengthSize) }

func align8(n int) int { return (n + 7) &^ 7 }

// readCollection returns the objects of the collection at addr by index.
func readCollection(r *binary.Reader, addr uint64) (map[uint16][]byte, error) {
	if addr == 0 || r.IsUndefinedOffset(addr) {
		return nil, fmt.Errorf("%w: collection address %#x", ErrCorrupt, addr)
	}
	ls := r.LengthSize()
	hr := r.At(int64(addr))
	head, err := hr.ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("reading global heap: %w", err)
	}
	if string(head[:4]) != "GCOL" {
		return nil, fmt.Errorf("%w: bad global heap signature %q", ErrCorrupt, head[:4])
	}
	if head[4] != 1 {
		return nil, fmt.Errorf("unsupported global heap version %d", head[4])
	}
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	if size < uint64(collectionHeader(ls)) {
		return nil, fmt.Errorf("%w: collection of %d bytes", ErrCorrupt, size)
	}
	body, err := hr.ReadBytes(int(size) - collectionHeader(ls))
	if err != nil {
		return nil, fmt.Errorf("reading global heap: %w", err)
	}

	objs := make(map[uint16][]byte)
	for len(body) >= objectHeader(ls) {
		idx := uint16(binary.UintLE(body, 2))
		if idx == 0 {
			break // free space runs to the end
		}
		n := binary.UintLE(body[8:], ls)
		end := uint64(objectHeader(ls)) + n
		if end > uint64(len(body)) {
			return nil, fmt.Errorf("%w: object %d overruns its collection", ErrCorrupt, idx)
		}
		objs[idx] = body[objectHeader(ls):end]
		next := uint64(objectHeader(ls)) + uint64(align8(int(n)))
		body = body[min(next, uint64(len(body))):]
	}
	return objs, nil
}

// Cache reads each collection once.
type Cache struct {
	r           *binary.Reader
	collections map[uint64]map[uint16][]byte
}

// NewCache returns an empty collection cache over r.
func NewCache(r *binary.Reader) *Cache {
	return &Cache{r: r, collections: make(map[uint64]map[uint16][]byte)}
}

// String resolves a vlen string reference. The stored bytes are trimmed to
// the recorded length, so embedded NULs survive.
func (c *Cache) String(ref VlenRef) (string, error) {
	if ref.Length == 0 {
		return "", nil
	}
	objs, ok := c.collections[ref.ID.CollectionAddress]
	if !ok {
		var err error
		if objs, err = readCollection(c.r, ref.ID.CollectionAddress); err != nil {
			return "", err
		}
		c.collections[ref.ID.CollectionAddress] = objs
	}
	data, ok := objs[uint16(ref.ID.ObjectIndex)]
	if !ok {
		return "", fmt.Errorf("%w: no object %d in collection %#x", ErrCorrupt, ref.ID.ObjectIndex, ref.ID.CollectionAddress)
	}
	if int(ref.Length) < len(data) {
		data = data[:ref.Length]
	}
	return string(data), nil
}
