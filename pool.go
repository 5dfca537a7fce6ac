package memtier

import (
	"sync/atomic"
	"unsafe"

	"github.com/bnclabs/memtier/api"
)

// Origin is the caller-supplied allocation site: a raw "file, line"
// pair attached to every tracked block for leak reporting. Pool does
// not interpret it; it exists for api.Tracker implementations.
type Origin struct {
	File string
	Line int
}

// Pool is the composition root: owns every tier, its own Counters,
// and the router that dispatches between them. Construction
// wires one api.Mapper into all four tiers; teardown walks them in
// reverse order and checks the balance invariant.
type Pool struct {
	settings Settings
	mapper   api.Mapper
	tracker  api.Tracker
	counters Counters

	small  *smallTier
	medium *mediumTier
	large  *largeTier
	huge   *hugeTier
	router *router

	destructing int32
}

// New builds a Pool over mapper using settings (nil selects
// Defaultsettings). Fires the one-shot "constructed directly" warning
// unless the caller is the adaptor package (see
// SuppressNextConstructionWarning).
func New(mapper api.Mapper, settings Settings) *Pool {
	maybeWarnDirectUse()
	if settings == nil {
		settings = Defaultsettings()
	}
	p := &Pool{settings: settings, mapper: mapper}

	flushThreshold := int(settings.Int64("small.flushthreshold"))
	ringCapacity := int(settings.Int64("medium.ringcapacity"))

	p.small = newSmallTier(mapper, &p.counters, flushThreshold)
	p.medium = newMediumTier(mapper, &p.counters, ringCapacity)
	p.large = newLargeTier(mapper, &p.counters)
	p.huge = newHugeTier(mapper, &p.counters)
	p.router = newRouter(mapper, &p.counters, p.small, p.medium, p.large, p.huge)
	return p
}

// SetTracker wires an optional leak tracker; when set, Allocate and
// Deallocate report every block through it. Every block is reported
// with a nil rawPtr.
func (p *Pool) SetTracker(tracker api.Tracker) { p.tracker = tracker }

// NewLocalCache hands out a per-goroutine small-tier cache handle —
// see LocalCache's doc comment for why this is explicit rather than
// implicit thread-local storage.
func (p *Pool) NewLocalCache() *LocalCache { return newLocalCache() }

// Allocate is the zero-handle entry point: correct under any calling
// convention, at the cost of never using a TLS cache fast path.
func (p *Pool) Allocate(bytes int64, alignment uintptr, origin Origin, nothrow bool) (unsafe.Pointer, error) {
	return p.AllocateFast(nil, bytes, alignment, origin, nothrow)
}

// Deallocate is the zero-handle entry point matching Allocate.
func (p *Pool) Deallocate(ptr unsafe.Pointer) {
	p.DeallocateFast(nil, ptr)
}

// AllocateFast is Allocate with an explicit LocalCache, giving the
// small tier its thread-local fast path.
func (p *Pool) AllocateFast(cache *LocalCache, bytes int64, alignment uintptr, origin Origin, nothrow bool) (unsafe.Pointer, error) {
	ptr, err := p.router.Allocate(cache, bytes, alignment, nothrow)
	if err != nil || ptr == nil {
		return ptr, err
	}
	if p.tracker != nil {
		p.tracker.TrackAllocation(ptr, bytes, origin.File, origin.Line, nil)
	}
	return ptr, nil
}

// DeallocateFast is Deallocate with an explicit LocalCache.
func (p *Pool) DeallocateFast(cache *LocalCache, ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	p.router.Deallocate(cache, ptr)
	if p.tracker != nil {
		p.tracker.TrackDeallocation(ptr)
	}
}

// Stats reports a snapshot of this Pool's usage.
type Stats struct {
	UsedBytes      int64
	OpCount        int64
	MediumOccupied int64
	LargeActive    int64
	HugeActive     int64
}

func (p *Pool) Stats() Stats {
	return Stats{
		UsedBytes:      p.counters.UsedBytes(),
		OpCount:        p.counters.OpCount(),
		MediumOccupied: p.medium.occupiedBytes(),
		LargeActive:    p.large.activeBytes(),
		HugeActive:     p.huge.activeBytes(),
	}
}

// Teardown flushes the calling thread's cache if any, releases every
// tier in reverse construction order, and verifies the balance
// invariant.
func (p *Pool) Teardown(cache *LocalCache) error {
	if !atomic.CompareAndSwapInt32(&p.destructing, 0, 1) {
		return nil
	}
	if cache != nil {
		cache.Flush(p.small)
	}

	p.huge.release()
	p.large.release()
	p.medium.release()
	p.small.release()

	if !p.counters.Balanced() {
		warnf("memtier: teardown with unbalanced counters: used=%d ops=%d", p.counters.UsedBytes(), p.counters.OpCount())
		return AllocFailed
	}
	return nil
}
