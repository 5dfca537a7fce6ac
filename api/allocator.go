package api

import "unsafe"

// Allocator is the standard-container-compatible shape that the
// adaptor package exposes over a *memtier.Pool, mirrored on the
// teacher's Mallocer interface (method-per-concern, no embedding) so
// that code written against that style of allocator interface can
// swap in this allocator with no call-site changes beyond the import.
type Allocator interface {
	// Alloc allocates a chunk of `n` bytes. Allocated memory is
	// aligned to at least the platform default alignment.
	Alloc(n int64) unsafe.Pointer

	// Free releases a chunk previously returned by Alloc.
	Free(ptr unsafe.Pointer)

	// Release tears down the allocator and every resource it owns.
	Release()

	// Info reports capacity, heap (bytes mapped from the OS), alloc
	// (bytes handed to callers) and overhead (bookkeeping bytes).
	Info() (capacity, heap, alloc, overhead int64)
}
