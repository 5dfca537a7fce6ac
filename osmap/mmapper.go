package osmap

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PageMapper is an api.Mapper backed by an anonymous mmap, with an
// opportunistic MAP_HUGETLB hint for superchunk-sized requests. The
// hint is best-effort: if the kernel rejects MAP_HUGETLB (no
// hugepages configured, unsupported platform), PageMapper silently
// retries without it rather than failing the allocation.
//
// unix.Mmap/unix.Munmap operate on the []byte they return, not a raw
// address, so PageMapper keeps a registry from the address it hands
// out back to that slice — needed at Deallocate time regardless of
// what the caller passes as its own bytes count.
type PageMapper struct {
	// HugePageThreshold is the minimum request size, in bytes, at
	// which PageMapper attempts the MAP_HUGETLB hint. Zero disables
	// the hint entirely.
	HugePageThreshold uintptr

	mapped int64 // atomic: bytes currently outstanding

	mu       sync.Mutex
	mappings map[uintptr][]byte
}

// NewPageMapper constructs a PageMapper that attempts huge pages for
// requests at or above hugePageThreshold bytes.
func NewPageMapper(hugePageThreshold uintptr) *PageMapper {
	return &PageMapper{HugePageThreshold: hugePageThreshold, mappings: make(map[uintptr][]byte)}
}

// Allocate implements api.Mapper. alignment beyond the page size is
// honored by over-mapping and recording the aligned sub-address in
// the mappings registry, which Deallocate consults directly.
func (m *PageMapper) Allocate(bytes, alignment uintptr) uintptr {
	pagesize := uintptr(unix.Getpagesize())
	if alignment <= pagesize {
		data := m.mmap(bytes)
		if data == nil {
			return 0
		}
		addr := uintptr(unsafe.Pointer(&data[0]))
		m.register(addr, data)
		return addr
	}

	slack := alignment - pagesize
	data := m.mmap(bytes + slack)
	if data == nil {
		return 0
	}
	base := uintptr(unsafe.Pointer(&data[0]))
	aligned := (base + alignment - 1) &^ (alignment - 1)
	m.register(aligned, data)
	return aligned
}

func (m *PageMapper) register(addr uintptr, data []byte) {
	m.mu.Lock()
	m.mappings[addr] = data
	m.mu.Unlock()
}

func (m *PageMapper) mmap(bytes uintptr) []byte {
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if m.HugePageThreshold > 0 && bytes >= m.HugePageThreshold {
		if data, err := unix.Mmap(-1, 0, int(bytes), prot, flags|unix.MAP_HUGETLB); err == nil {
			atomic.AddInt64(&m.mapped, int64(bytes))
			return data
		}
		// Huge pages unavailable; fall through to the plain mapping.
	}
	data, err := unix.Mmap(-1, 0, int(bytes), prot, flags)
	if err != nil {
		return nil
	}
	atomic.AddInt64(&m.mapped, int64(bytes))
	return data
}

// Deallocate implements api.Mapper.
func (m *PageMapper) Deallocate(ptr, bytes uintptr) {
	if ptr == 0 {
		return
	}
	m.mu.Lock()
	data, ok := m.mappings[ptr]
	if ok {
		delete(m.mappings, ptr)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	mapped := int64(len(data))
	_ = unix.Munmap(data)
	atomic.AddInt64(&m.mapped, -mapped)
}

// Mapped reports bytes currently outstanding against this mapper.
func (m *PageMapper) Mapped() int64 {
	return atomic.LoadInt64(&m.mapped)
}
