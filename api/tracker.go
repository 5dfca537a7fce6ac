package api

import (
	"io"
	"unsafe"
)

// Tracker is an optional source-location leak ledger keyed by user
// pointer. It is an external collaborator: the core forwards `origin`
// (file, line) opaquely and never inspects tracker state itself.
//
// All methods must be idempotent under double-calls and safe for
// concurrent use.
type Tracker interface {
	// TrackAllocation records a live allocation. rawPtr is the
	// tier-specific header address backing userPtr, or 0 if not
	// applicable (e.g. the alignment slow path).
	TrackAllocation(userPtr unsafe.Pointer, size int64, file string, line int, rawPtr unsafe.Pointer)

	// TrackDeallocation removes a previously tracked allocation. A
	// pointer that was never tracked, or already untracked, is a
	// silent no-op.
	TrackDeallocation(userPtr unsafe.Pointer)

	// ReportLeaks writes a human-readable report of every allocation
	// still live to w.
	ReportLeaks(w io.Writer)

	// CurrentMemoryUsage returns the sum of sizes of every live
	// tracked allocation.
	CurrentMemoryUsage() int64
}
