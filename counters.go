package memtier

import "sync/atomic"

// Counters tracks two quantities: net bytes mapped from the OS, and
// net outstanding OS-mapping operations. Each Pool owns one Counters
// instance, updated by its tiers and router (not by the mapper); it
// is not shared with other Pools, so the counts are per Pool, not
// process-wide. Quiescent reads of both fields are zero once that
// Pool has torn down.
type Counters struct {
	usedBytes int64
	opCount   int64
}

// OnAllocate records a successful OS mapping of `bytes`.
func (c *Counters) OnAllocate(bytes int64) {
	atomic.AddInt64(&c.usedBytes, bytes)
	atomic.AddInt64(&c.opCount, 1)
}

// OnDeallocate records a release of `bytes` back to the OS.
func (c *Counters) OnDeallocate(bytes int64) {
	atomic.AddInt64(&c.usedBytes, -bytes)
	atomic.AddInt64(&c.opCount, -1)
}

// UsedBytes returns the current net byte count.
func (c *Counters) UsedBytes() int64 {
	return atomic.LoadInt64(&c.usedBytes)
}

// OpCount returns the current net operation count.
func (c *Counters) OpCount() int64 {
	return atomic.LoadInt64(&c.opCount)
}

// Balanced reports whether both counters are quiescent-zero, the
// condition Pool teardown asserts.
func (c *Counters) Balanced() bool {
	return c.UsedBytes() == 0 && c.OpCount() == 0
}

// warningShown is the process-wide "direct, non-adaptor use" one-shot
// flag.
var warningShown int32

// suppressNextWarning lets the adaptor package construct its own Pool
// without tripping the warning meant for direct callers of New.
var suppressNextWarning int32

// SuppressNextConstructionWarning skips the next New call's one-shot
// "direct, non-adaptor use" warning. The adaptor package calls this
// immediately before constructing the Pool it wraps, since that
// construction is adaptor-mediated rather than direct.
func SuppressNextConstructionWarning() {
	atomic.StoreInt32(&suppressNextWarning, 1)
}

func maybeWarnDirectUse() {
	if atomic.CompareAndSwapInt32(&suppressNextWarning, 1, 0) {
		return
	}
	if atomic.CompareAndSwapInt32(&warningShown, 0, 1) {
		warnf("memtier: Pool constructed directly; consider the adaptor package for standard-container-compatible usage")
	}
}
