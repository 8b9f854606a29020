package binary

import "math/bits"

// Lookup3Checksum is Bob Jenkins' hashlittle with a zero seed, which HDF5
// uses to checksum v2 superblocks, object headers, heaps and B-tree nodes.
func Lookup3Checksum(data []byte) uint32 {
	seed := 0xdeadbeef + uint32(len(data))
	a, b, c := seed, seed, seed

	// The final block of 1 to 12 bytes takes the final mix, never the
	// inner one, so the loop stops while more than 12 bytes remain.
	for len(data) > 12 {
		a += le32(data[0:4])
		b += le32(data[4:8])
		c += le32(data[8:12])
		a, b, c = mix(a, b, c)
		data = data[12:]
	}
	if len(data) == 0 {
		return c
	}

	var tail [12]byte
	copy(tail[:], data)
	a += le32(tail[0:4])
	b += le32(tail[4:8])
	c += le32(tail[8:12])
	_, _, c = final(a, b, c)
	return c
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= bits.RotateLeft32(c, 4)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 6)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 8)
	b += a
	a -= c
	a ^= bits.RotateLeft32(c, 16)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 19)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	for _, step := range [...]struct {
		rot int
		x   *uint32
		y   *uint32
	}{{14, &c, &b}, {11, &a, &c}, {25, &b, &a}, {16, &c, &b}, {4, &a, &c}, {14, &b, &a}, {24, &c, &b}} {
		*step.x ^= *step.y
		*step.x -= bits.RotateLeft32(*step.y, step.rot)
	}
	return a, b, c
}

// Fletcher32 is the checksum of the HDF5 fletcher32 filter. Bytes are
// summed as big-endian 16-bit words with a trailing odd byte padded by zero,
// and the sums are folded with end-around carry.
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32
	fold := func() {
		sum1 = sum1&0xffff + sum1>>16
		sum2 = sum2&0xffff + sum2>>16
	}
	for len(data) >= 2 {
		n := min(len(data)/2, 360)
		for i := range n {
			sum1 += uint32(data[2*i])<<8 | uint32(data[2*i+1])
			sum2 += sum1
		}
		fold()
		data = data[2*n:]
	}
	if len(data) == 1 {
		sum1 += uint32(data[0]) << 8
		sum2 += sum1
		fold()
	}
	fold()
	return sum2<<16 | sum1
}
