package memtier

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/bnclabs/memtier/api"
)

// largeHeader is the pass-through block header: magic, free flag, and
// the total mapped size (header plus payload). Deallocate takes the
// byte count it reports to the mapper from the active registry.
type largeHeader struct {
	magic uint32
	free  uint32
	size  int64
}

const largeHeaderSize = uintptr(unsafe.Sizeof(largeHeader{}))

func largeHeaderAt(addr uintptr) *largeHeader {
	return (*largeHeader)(unsafe.Pointer(addr))
}

func (h *largeHeader) dataPtr() uintptr {
	return uintptr(unsafe.Pointer(h)) + largeHeaderSize
}

// largeTier: every request is a direct pass-through to the OS mapper,
// tracked in a mutex-guarded registry so Release can account for
// outstanding blocks and Pool diagnostics can report the active set.
type largeTier struct {
	mapper   api.Mapper
	counters *Counters

	mu       sync.Mutex
	active   map[uintptr]int64 // header address -> total bytes requested from mapper
}

func newLargeTier(mapper api.Mapper, counters *Counters) *largeTier {
	return &largeTier{mapper: mapper, counters: counters, active: make(map[uintptr]int64)}
}

// Allocate maps enough bytes for the header plus the payload and
// registers the block.
func (t *largeTier) Allocate(bytes int64) (uintptr, error) {
	total := int64(largeHeaderSize) + bytes
	base := t.mapper.Allocate(uintptr(total), DefaultAlignment)
	if base == 0 {
		return 0, AllocFailed
	}
	t.counters.OnAllocate(total)

	hdr := largeHeaderAt(base)
	hdr.magic = MagicLarge
	hdr.free = 0
	hdr.size = total

	t.mu.Lock()
	t.active[base] = total
	t.mu.Unlock()
	return hdr.dataPtr(), nil
}

// Deallocate unmaps the whole registered block.
func (t *largeTier) Deallocate(raw uintptr) {
	hdr := largeHeaderAt(raw)
	if !atomic.CompareAndSwapUint32(&hdr.free, 0, 1) {
		return // DoubleFree: absorbed silently
	}
	if hdr.magic != MagicLarge {
		errorf("memtier: corrupted magic on large block %#x", raw)
		return
	}

	t.mu.Lock()
	total, ok := t.active[raw]
	if ok {
		delete(t.active, raw)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.mapper.Deallocate(raw, uintptr(total))
	t.counters.OnDeallocate(total)
}

// release unmaps every block still outstanding at teardown.
func (t *largeTier) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for base, total := range t.active {
		t.mapper.Deallocate(base, uintptr(total))
		t.counters.OnDeallocate(total)
	}
	t.active = make(map[uintptr]int64)
}

// activeBytes reports bytes currently outstanding, for diagnostics.
func (t *largeTier) activeBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, v := range t.active {
		total += v
	}
	return total
}
