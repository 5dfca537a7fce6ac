// Package osmap supplies concrete api.Mapper backends: a cgo
// C.malloc/C.free mapper (the default) and a golang.org/x/sys/unix
// mmap-backed alternative with a huge-page hint.
package osmap

// #include <stdlib.h>
import "C"

import (
	"sync/atomic"
	"unsafe"
)

// CMapper is an api.Mapper backed directly by the C allocator.
// Allocate uses posix_memalign, so the returned address honors the
// requested alignment (raised to at least the pointer size).
type CMapper struct {
	mapped int64 // atomic: bytes currently outstanding
}

// NewCMapper constructs a CMapper.
func NewCMapper() *CMapper { return &CMapper{} }

// Allocate implements api.Mapper.
func (m *CMapper) Allocate(bytes, alignment uintptr) uintptr {
	if minAlign := unsafe.Sizeof(uintptr(0)); alignment < minAlign {
		alignment = minAlign
	}
	var ptr unsafe.Pointer
	if C.posix_memalign(&ptr, C.size_t(alignment), C.size_t(bytes)) != 0 || ptr == nil {
		return 0
	}
	atomic.AddInt64(&m.mapped, int64(bytes))
	return uintptr(ptr)
}

// Deallocate implements api.Mapper.
func (m *CMapper) Deallocate(ptr, bytes uintptr) {
	if ptr == 0 {
		return
	}
	C.free(unsafe.Pointer(ptr))
	atomic.AddInt64(&m.mapped, -int64(bytes))
}

// Mapped reports bytes currently outstanding against the C allocator.
func (m *CMapper) Mapped() int64 {
	return atomic.LoadInt64(&m.mapped)
}
