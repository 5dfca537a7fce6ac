// Package memtier supplies a multi-tier user-space memory allocator
// for concurrent use. It sits between application code and the
// operating system's virtual-memory primitives, aggregating large OS
// mappings into finely tunable blocks and recycling freed blocks to
// amortize syscall cost.
//
// Pool is the composition root: it owns a SmallTier (per-thread free
// stacks backed by a global lock-free stack per size class), a
// MediumTier (a buddy allocator with lock-free per-order free lists
// and an asynchronous merge worker), and pass-through Large and Huge
// tiers for everything above the buddy allocator's range. Router
// classifies each request by size and alignment and dispatches to the
// right tier, writing an in-band header before the user pointer so
// that Deallocate can recover tier ownership without being told which
// tier a pointer came from.
//
//   - Types and functions exported by this package are safe for
//     concurrent use unless documented otherwise.
//   - Allocated memory is not zeroed unless the caller zeroes it.
//   - There is no garbage collector, no compaction beyond buddy
//     coalescing, and no cross-process sharing.
package memtier
