package memtier

import (
	"sync"
	"unsafe"
)

// fakeMapper is an api.Mapper backed by plain Go slices, used across
// this package's tests so they never touch cgo or mmap.
type fakeMapper struct {
	mu   sync.Mutex
	live map[uintptr][]byte
}

func newFakeMapper() *fakeMapper {
	return &fakeMapper{live: make(map[uintptr][]byte)}
}

func (m *fakeMapper) Allocate(bytes, alignment uintptr) uintptr {
	if alignment == 0 {
		alignment = 1
	}
	buf := make([]byte, bytes+alignment)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + alignment - 1) &^ (alignment - 1)

	m.mu.Lock()
	m.live[aligned] = buf
	m.mu.Unlock()
	return aligned
}

func (m *fakeMapper) Deallocate(ptr, bytes uintptr) {
	m.mu.Lock()
	delete(m.live, ptr)
	m.mu.Unlock()
}

func (m *fakeMapper) liveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
