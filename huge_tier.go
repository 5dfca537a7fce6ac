package memtier

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/bnclabs/memtier/api"
)

// hugeHeader mirrors largeHeader; kept as a distinct type so the two
// tiers validate against their own magic independently.
type hugeHeader struct {
	magic uint32
	free  uint32
	size  int64
}

const hugeHeaderSize = uintptr(unsafe.Sizeof(hugeHeader{}))

func hugeHeaderAt(addr uintptr) *hugeHeader {
	return (*hugeHeader)(unsafe.Pointer(addr))
}

func (h *hugeHeader) dataPtr() uintptr {
	return uintptr(unsafe.Pointer(h)) + hugeHeaderSize
}

type hugeBlock struct {
	base uintptr
	size int64
}

// hugeTier: pass-through allocation above HugeTierBoundary, tracked
// as (base, size) pairs rather than largeTier's map — huge
// allocations are rare enough that a linear registry is the simpler,
// equally correct choice, and the distinct shape documents that the
// two tiers were not meant to share a type.
type hugeTier struct {
	mapper   api.Mapper
	counters *Counters

	mu     sync.Mutex
	active []hugeBlock
}

func newHugeTier(mapper api.Mapper, counters *Counters) *hugeTier {
	return &hugeTier{mapper: mapper, counters: counters}
}

func (t *hugeTier) Allocate(bytes int64) (uintptr, error) {
	total := int64(hugeHeaderSize) + bytes
	base := t.mapper.Allocate(uintptr(total), DefaultAlignment)
	if base == 0 {
		return 0, AllocFailed
	}
	t.counters.OnAllocate(total)

	hdr := hugeHeaderAt(base)
	hdr.magic = MagicHuge
	hdr.free = 0
	hdr.size = total

	t.mu.Lock()
	t.active = append(t.active, hugeBlock{base: base, size: total})
	t.mu.Unlock()
	return hdr.dataPtr(), nil
}

func (t *hugeTier) Deallocate(raw uintptr) {
	hdr := hugeHeaderAt(raw)
	if !atomic.CompareAndSwapUint32(&hdr.free, 0, 1) {
		return // DoubleFree: absorbed silently
	}
	if hdr.magic != MagicHuge {
		errorf("memtier: corrupted magic on huge block %#x", raw)
		return
	}

	t.mu.Lock()
	var total int64
	found := false
	for i, b := range t.active {
		if b.base == raw {
			total = b.size
			found = true
			t.active = append(t.active[:i], t.active[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	if !found {
		return
	}
	t.mapper.Deallocate(raw, uintptr(total))
	t.counters.OnDeallocate(total)
}

// release unmaps every block still outstanding at teardown.
func (t *hugeTier) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.active {
		t.mapper.Deallocate(b.base, uintptr(b.size))
		t.counters.OnDeallocate(b.size)
	}
	t.active = nil
}

func (t *hugeTier) activeBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, b := range t.active {
		total += b.size
	}
	return total
}
