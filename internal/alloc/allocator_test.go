package alloc

import (
	"slices"
	"sync"
	"testing"
)

func TestAppend(t *testing.T) {
	a := New(48)

	if addr := a.Alloc(100); addr != 48 {
		t.Errorf("first allocation: got 0x%x, want 0x%x", addr, 48)
	}
	if addr := a.Alloc(10); addr != 148 {
		t.Errorf("second allocation: got 0x%x, want 0x%x", addr, 148)
	}
	// Zero-size allocations do not move EOF
	if addr := a.Alloc(0); addr != 158 {
		t.Errorf("zero allocation: got 0x%x, want 0x%x", addr, 158)
	}
	if a.EOFAddr() != 158 {
		t.Errorf("EOF: got 0x%x, want 0x%x", a.EOFAddr(), 158)
	}
}

func TestAligned(t *testing.T) {
	a := New(10)

	if addr := a.AllocAligned(4, 8); addr != 16 {
		t.Errorf("aligned allocation: got 0x%x, want 0x%x", addr, 16)
	}
	if a.EOFAddr() != 20 {
		t.Errorf("EOF: got 0x%x, want 0x%x", a.EOFAddr(), 20)
	}
	if addr := a.AllocAligned(4, 0); addr != 20 {
		t.Errorf("unaligned allocation: got 0x%x, want 0x%x", addr, 20)
	}
}

func TestReuse(t *testing.T) {
	a := New(0)
	first := a.Alloc(64)
	second := a.Alloc(64)
	a.Alloc(64)
	if err := a.Free(first, 64); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	// Lowest free block is reused
	if addr := a.Alloc(16); addr != 0 {
		t.Errorf("reuse: got 0x%x, want 0", addr)
	}
	if got, want := a.FreeSpace(), []Extent{{16, 48}}; !slices.Equal(got, want) {
		t.Errorf("free space: got %v, want %v", got, want)
	}
	// Too large for the free block, so it goes to EOF
	if addr := a.Alloc(100); addr != 192 {
		t.Errorf("large allocation: got 0x%x, want 0x%x", addr, 192)
	}

	if err := a.Free(second, 64); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if got, want := a.FreeSpace(), []Extent{{16, 112}}; !slices.Equal(got, want) {
		t.Errorf("neighbours should merge: got %v, want %v", got, want)
	}

	if addr := a.AllocAligned(8, 32); addr != 32 {
		t.Errorf("aligned reuse: got 0x%x, want 0x%x", addr, 32)
	}
	if got, want := a.FreeSpace(), []Extent{{16, 16}, {40, 88}}; !slices.Equal(got, want) {
		t.Errorf("free space after split: got %v, want %v", got, want)
	}
}

func TestFreeErrors(t *testing.T) {
	a := New(0)
	addr := a.Alloc(32)
	if err := a.Free(addr, 16); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := a.Free(addr+8, 8); err == nil {
		t.Error("expected error freeing over a free block")
	}
	if err := a.Free(addr, 64); err == nil {
		t.Error("expected error freeing past the end of the file")
	}
	if err := a.Free(addr+16, 16); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if got, want := a.FreeSpace(), []Extent{{0, 32}}; !slices.Equal(got, want) {
		t.Errorf("free space: got %v, want %v", got, want)
	}
}

func TestConcurrentAlloc(t *testing.T) {
	a := New(0)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]bool)
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				addr := a.Alloc(8)
				mu.Lock()
				seen[addr] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 800 {
		t.Errorf("distinct addresses: got %d, want 800", len(seen))
	}
	if a.EOFAddr() != 6400 {
		t.Errorf("EOF: got %d, want 6400", a.EOFAddr())
	}
}
