// Package api defines the contracts for the allocator's external
// collaborators: the OS page mapper, the leak tracker, and the
// standard-container-compatible adaptor. The core (memtier) package
// depends only on these interfaces, never on a concrete backend.
package api

// Mapper reserves and releases page-aligned virtual memory on behalf
// of a tier. Bytes and alignment passed to Allocate are the total
// mapping size, not a user-request size; the header and any alignment
// padding are the caller's concern. The caller, not Mapper, is
// responsible for updating the owning Pool's Counters.
//
// Mapper is an external collaborator: memtier fixes this contract but
// does not mandate a backend. See the osmap package for two concrete
// implementations.
type Mapper interface {
	// Allocate reserves `bytes` of memory aligned to `alignment`
	// (which is always a power of two, at least the platform word
	// size). Returns 0 on failure. huge-page use is a hint, not a
	// promise.
	Allocate(bytes, alignment uintptr) uintptr

	// Deallocate releases a mapping previously returned by Allocate.
	// bytes must match the size passed to Allocate.
	Deallocate(ptr, bytes uintptr)
}
