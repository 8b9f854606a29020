// Package alloc hands out file space for a writable HDF5 file.
//
// Space comes from the end of the file unless a block released by Free
// during the same session is large enough, in which case the lowest such
// block is reused. Free space is not persisted: blocks released before the
// file is closed are simply lost to later sessions.
package alloc

import (
	"fmt"
	"slices"
	"sync"
)

// Extent is a run of file bytes.
type Extent struct {
	Addr uint64
	Size uint64
}

func (e Extent) end() uint64 { return e.Addr + e.Size }

// Allocator tracks the end of the file and the blocks freed since it was
// created. It is safe for concurrent use.
type Allocator struct {
	mu   sync.Mutex
	eof  uint64
	free []Extent // sorted by Addr, never adjacent
}

// New returns an allocator whose first block starts at eof.
func New(eof uint64) *Allocator {
	return &Allocator{eof: eof}
}

// Alloc reserves size bytes and returns their address.
func (a *Allocator) Alloc(size uint64) uint64 {
	return a.AllocAligned(size, 1)
}

// AllocAligned reserves size bytes starting at a multiple of align.
func (a *Allocator) AllocAligned(size, align uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if size == 0 {
		return a.eof
	}
	align = max(align, 1)

	for i, e := range a.free {
		addr := roundUp(e.Addr, align)
		if addr+size > e.end() {
			continue
		}
		a.free = slices.Delete(a.free, i, i+1)
		a.release(Extent{e.Addr, addr - e.Addr})
		a.release(Extent{addr + size, e.end() - addr - size})
		return addr
	}

	addr := roundUp(a.eof, align)
	a.eof = addr + size
	return addr
}

// Free returns a block to the allocator. Freeing space that was never
// allocated, or freeing it twice, is an error.
func (a *Allocator) Free(addr, size uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := Extent{addr, size}
	if e.end() > a.eof {
		return fmt.Errorf("free [0x%x, 0x%x) past end of file 0x%x", e.Addr, e.end(), a.eof)
	}
	for _, f := range a.free {
		if e.Addr < f.end() && f.Addr < e.end() {
			return fmt.Errorf("free [0x%x, 0x%x) overlaps free block at 0x%x", e.Addr, e.end(), f.Addr)
		}
	}
	a.release(e)
	return nil
}

// release inserts e into the free list, merging it with its neighbours.
func (a *Allocator) release(e Extent) {
	if e.Size == 0 {
		return
	}
	i, _ := slices.BinarySearchFunc(a.free, e.Addr, func(f Extent, addr uint64) int {
		return cmpUint(f.Addr, addr)
	})
	if i > 0 && a.free[i-1].end() == e.Addr {
		i--
		e = Extent{a.free[i].Addr, a.free[i].Size + e.Size}
		a.free = slices.Delete(a.free, i, i+1)
	}
	if i < len(a.free) && e.end() == a.free[i].Addr {
		e.Size += a.free[i].Size
		a.free = slices.Delete(a.free, i, i+1)
	}
	a.free = slices.Insert(a.free, i, e)
}

// EOFAddr is the address one past the last allocated byte.
func (a *Allocator) EOFAddr() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}

// FreeSpace returns a copy of the free list.
func (a *Allocator) FreeSpace() []Extent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.free)
}

func roundUp(v, align uint64) uint64 {
	if r := v % align; r != 0 {
		return v + align - r
	}
	return v
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
