// Package adaptor wraps a *memtier.Pool in the standard-container-
// compatible api.Allocator shape, a method-per-concern interface
// (Alloc/Free/Release/Info) that lets callers written against that
// shape swap in memtier's tiered Pool with no call-site changes
// beyond the import.
package adaptor

import (
	"unsafe"

	"github.com/bnclabs/memtier"
	"github.com/bnclabs/memtier/api"
)

// Adaptor implements api.Allocator over a *memtier.Pool. It owns one
// LocalCache, so a single Adaptor value should not be shared across
// goroutines — construct one per worker, exactly as memtier.LocalCache
// itself requires.
type Adaptor struct {
	pool  *memtier.Pool
	cache *memtier.LocalCache
}

var _ api.Allocator = (*Adaptor)(nil)

// New constructs a Pool over mapper and wraps it in the api.Allocator
// shape. Settings is passed straight through to memtier.New (nil
// selects memtier.Defaultsettings). Going through New is the
// standard-container-compatible path, so the Pool it builds does not
// trigger memtier's "constructed directly" warning.
func New(mapper api.Mapper, settings memtier.Settings) *Adaptor {
	memtier.SuppressNextConstructionWarning()
	pool := memtier.New(mapper, settings)
	return &Adaptor{pool: pool, cache: pool.NewLocalCache()}
}

// Alloc implements api.Allocator.
func (a *Adaptor) Alloc(n int64) unsafe.Pointer {
	ptr, err := a.pool.AllocateFast(a.cache, n, 0, memtier.Origin{}, true)
	if err != nil {
		return nil
	}
	return ptr
}

// Free implements api.Allocator.
func (a *Adaptor) Free(ptr unsafe.Pointer) {
	a.pool.DeallocateFast(a.cache, ptr)
}

// Release implements api.Allocator.
func (a *Adaptor) Release() {
	_ = a.pool.Teardown(a.cache)
}

// Info implements api.Allocator. capacity and heap both report the
// bytes the Pool holds from its mapper. alloc sums the medium tier's
// occupied blocks and the large and huge tiers' active blocks; small-
// tier and over-aligned allocations are not counted. overhead is
// always 0.
func (a *Adaptor) Info() (capacity, heap, alloc, overhead int64) {
	stats := a.pool.Stats()
	heap = stats.UsedBytes
	alloc = stats.MediumOccupied + stats.LargeActive + stats.HugeActive
	return heap, heap, alloc, 0
}
