package memtier

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/bnclabs/memtier/api"
	"github.com/bnclabs/memtier/lib"
)

// mediumHeader is the buddy-block header: magic, order, an atomic
// free flag, and an intrusive next pointer used only while the block
// sits on its order's free list.
type mediumHeader struct {
	magic uint32
	order uint32
	free  uint32 // atomic: 1 while resting on frees[order]
	_     uint32
	next  unsafe.Pointer // *mediumHeader
	_     uint64          // pads header to 32 bytes so dataPtr keeps 16-byte alignment
}

const mediumHeaderSize = uintptr(unsafe.Sizeof(mediumHeader{}))

func mediumHeaderAt(addr uintptr) *mediumHeader {
	return (*mediumHeader)(unsafe.Pointer(addr))
}

func (h *mediumHeader) dataPtr() uintptr {
	return uintptr(unsafe.Pointer(h)) + mediumHeaderSize
}

func buddyAddr(addr uintptr, order int) uintptr {
	return addr ^ uintptr(sizeOfOrder(order))
}

type mediumChunk struct {
	base   uintptr
	size   int64
	bitmap []lib.Bit8 // one bit per 1 MiB unit; set iff occupied by a live allocation
}

// mediumTier: a 10-order buddy allocator, refilled chunk-by-chunk at
// whatever order is requested, with a lock-free (mutex-fallback) free
// list per order, a level-occupancy bitmap giving O(1) next-order
// search on the allocate path, a bitmap tracking which order-0 units
// are currently allocated (surfaced through Pool diagnostics), and an
// async merge worker fed by a bounded ring buffer.
type mediumTier struct {
	mapper   api.Mapper
	counters *Counters

	mu     sync.Mutex // chunk-registry and diagnostic-bitmap mutex
	chunks []mediumChunk
	frees  [MediumOrders]taggedPointer

	// occupancy is an atomic bitmap; bit i is set iff frees[i] is
	// observably non-empty. Pushes set their bit before the node
	// becomes reachable via CAS; pops clear their bit the moment they
	// observe the list drained. This lets acquireBlock find the
	// lowest non-empty order at or above the one it wants without
	// walking every order in between.
	occupancy uint32

	ring *mergeRing
}

func newMediumTier(mapper api.Mapper, counters *Counters, ringCapacity int) *mediumTier {
	t := &mediumTier{mapper: mapper, counters: counters}
	t.ring = newMergeRing(t, ringCapacity)
	return t
}

// Allocate pops a free block or splits one down from a higher order,
// refilling a fresh chunk sized to the requested order when every
// order at or above it is exhausted.
func (t *mediumTier) Allocate(order int) (uintptr, error) {
	hdr, err := t.acquireBlock(order)
	if err != nil {
		return 0, err
	}
	hdr.magic = MagicMedium
	hdr.order = uint32(order)
	atomic.StoreUint32(&hdr.free, 0)
	t.markOccupancy(uintptr(unsafe.Pointer(hdr)), sizeOfOrder(order), true)
	return hdr.dataPtr(), nil
}

// acquireBlock finds a block at want or splits one down from a higher
// order; when every order at or above want is empty it refills a
// fresh chunk sized to want and retries.
func (t *mediumTier) acquireBlock(want int) (*mediumHeader, error) {
	for {
		if hdr, foundOrder := t.findAndPop(want); hdr != nil {
			return t.splitDown(hdr, foundOrder, want), nil
		}
		hdr, retry, err := t.refill(want)
		if err != nil {
			return nil, err
		}
		if retry {
			continue
		}
		return hdr, nil
	}
}

// findAndPop bit-scans occupancy for the lowest order at or above want
// and pops from it, looping past any order whose bit raced empty
// between the scan and the pop.
func (t *mediumTier) findAndPop(want int) (*mediumHeader, int) {
	for {
		mask := atomic.LoadUint32(&t.occupancy) &^ (uint32(1)<<uint(want) - 1)
		if mask == 0 {
			return nil, 0
		}
		order := bits.TrailingZeros32(mask)
		if hdr := t.popFree(order); hdr != nil {
			return hdr, order
		}
	}
}

// splitDown halves a block repeatedly from its current order down to
// want, publishing each right-hand buddy to its own free list.
func (t *mediumTier) splitDown(parent *mediumHeader, from, want int) *mediumHeader {
	cur := parent
	for order := from; order > want; order-- {
		left, right := t.split(cur)
		t.pushFree(order-1, right)
		cur = left
	}
	return cur
}

// split halves parent (currently order+1) into two order-sized
// buddies in place; parent's own storage becomes the left buddy.
func (t *mediumTier) split(parent *mediumHeader) (left, right *mediumHeader) {
	order := int(parent.order) - 1
	leftAddr := uintptr(unsafe.Pointer(parent))
	rightAddr := leftAddr + uintptr(sizeOfOrder(order))

	left = mediumHeaderAt(leftAddr)
	left.magic = MagicMedium
	left.order = uint32(order)
	left.free = 0
	left.next = nil

	right = mediumHeaderAt(rightAddr)
	right.magic = MagicMedium
	right.order = uint32(order)
	right.next = nil
	return left, right
}

// Deallocate hands the block to the async merge worker, falling back
// to a synchronous merge when the ring is saturated.
func (t *mediumTier) Deallocate(raw uintptr) {
	hdr := mediumHeaderAt(raw)
	if !atomic.CompareAndSwapUint32(&hdr.free, 0, 1) {
		return // DoubleFree: absorbed silently
	}
	if hdr.magic != MagicMedium {
		errorf("memtier: corrupted magic on medium block %#x", raw)
		return
	}
	order := int(hdr.order)
	t.markOccupancy(raw, sizeOfOrder(order), false)
	if !t.ring.tryEnqueue(raw, order) {
		t.tryMergeBuddy(raw, order)
	}
}

// tryMergeBuddy uses XOR-offset buddy finding plus lock-free
// free-list removal, coalescing upward until the buddy is not free,
// is out of bounds, or the top order is reached.
func (t *mediumTier) tryMergeBuddy(addr uintptr, order int) {
	for order < MediumOrders-1 {
		buddy := buddyAddr(addr, order)
		if !t.chunkContains(buddy, order) {
			break
		}
		if !t.removeFree(order, buddy) {
			break
		}
		if buddy < addr {
			addr = buddy
		}
		order++
		hdr := mediumHeaderAt(addr)
		hdr.magic = MagicMedium
		hdr.order = uint32(order)
	}
	t.pushFree(order, mediumHeaderAt(addr))
}

// removeFree logically removes the free-list node at target by
// flipping its free flag. A node at the head of the list is also
// unlinked with a tagged CAS; a non-head node is not walked to or
// spliced out: removal bumps the head's generation instead, and
// popFree lazily discards nodes it encounters with free already
// cleared, which physically unlinks them the next time they reach
// the head.
func (t *mediumTier) removeFree(order int, target uintptr) bool {
	hdr := mediumHeaderAt(target)
	if !atomic.CompareAndSwapUint32(&hdr.free, 1, 0) {
		return false
	}
	if head, tag := t.frees[order].load(); head == unsafe.Pointer(hdr) {
		next := hdr.next
		if t.frees[order].compareAndSwap(head, tag, next) {
			if next == nil {
				t.clearOccupied(order)
			}
			return true
		}
	}
	t.frees[order].bumpTag() // invalidate any in-flight CAS against this head
	return true
}

func (t *mediumTier) setOccupied(order int) {
	bit := uint32(1) << uint(order)
	for {
		old := atomic.LoadUint32(&t.occupancy)
		if old&bit != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&t.occupancy, old, old|bit) {
			return
		}
	}
}

func (t *mediumTier) clearOccupied(order int) {
	bit := uint32(1) << uint(order)
	for {
		old := atomic.LoadUint32(&t.occupancy)
		if old&bit == 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&t.occupancy, old, old&^bit) {
			return
		}
	}
}

func (t *mediumTier) pushFree(order int, hdr *mediumHeader) {
	atomic.StoreUint32(&hdr.free, 1)
	t.setOccupied(order) // set before the node is reachable via CAS below
	head, tag := t.frees[order].load()
	for {
		hdr.next = head
		if t.frees[order].compareAndSwap(head, tag, unsafe.Pointer(hdr)) {
			return
		}
		head, tag = t.frees[order].load()
	}
}

func (t *mediumTier) popFree(order int) *mediumHeader {
	for {
		head, tag := t.frees[order].load()
		if head == nil {
			t.clearOccupied(order)
			return nil
		}
		hdr := (*mediumHeader)(head)
		next := hdr.next
		if !t.frees[order].compareAndSwap(head, tag, next) {
			continue
		}
		if next == nil {
			t.clearOccupied(order)
		}
		if atomic.CompareAndSwapUint32(&hdr.free, 1, 0) {
			return hdr
		}
		// hdr was already logically removed by a concurrent
		// tryMergeBuddy; it is now physically unlinked too, discard it.
	}
}

// refill maps a fresh chunk sized to want's order. If any free list
// is already non-empty, the new block is published at want and
// retry is true so the caller re-runs the bitmap search (which will
// now find it immediately); if the tier was completely empty the
// block is handed back directly without ever touching a free list.
func (t *mediumTier) refill(want int) (hdr *mediumHeader, retry bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := sizeOfOrder(want)
	base := t.mapper.Allocate(uintptr(size), uintptr(size))
	if base == 0 {
		return nil, false, AllocFailed
	}
	t.counters.OnAllocate(size)

	units := size / OrderUnit
	t.chunks = append(t.chunks, mediumChunk{base: base, size: size, bitmap: make([]lib.Bit8, ceilDiv(units, 8))})

	fresh := mediumHeaderAt(base)
	fresh.magic = MagicMedium
	fresh.order = uint32(want)
	fresh.free = 0
	fresh.next = nil

	if atomic.LoadUint32(&t.occupancy) != 0 {
		t.pushFree(want, fresh)
		return nil, true, nil
	}
	return fresh, false, nil
}

func (t *mediumTier) findChunk(addr uintptr) *mediumChunk {
	for i := range t.chunks {
		c := &t.chunks[i]
		if addr >= c.base && addr < c.base+uintptr(c.size) {
			return c
		}
	}
	return nil
}

func (t *mediumTier) markOccupancy(addr uintptr, size int64, occupied bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.findChunk(addr)
	if c == nil {
		return
	}
	start := int((addr - c.base) / OrderUnit)
	units := int(size / OrderUnit)
	for u := start; u < start+units; u++ {
		byteIdx, bit := u/8, uint8(u%8)
		if occupied {
			c.bitmap[byteIdx] = c.bitmap[byteIdx].Setbit(bit)
		} else {
			c.bitmap[byteIdx] = c.bitmap[byteIdx].Clearbit(bit)
		}
	}
}

func (t *mediumTier) chunkContains(addr uintptr, order int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.findChunk(addr)
	if c == nil {
		return false
	}
	return addr+uintptr(sizeOfOrder(order)) <= c.base+uintptr(c.size)
}

// occupiedBytes sums the bitmap-tracked live allocations, used by
// Pool diagnostics.
func (t *mediumTier) occupiedBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for i := range t.chunks {
		for _, b := range t.chunks[i].bitmap {
			total += int64(b.Ones()) * OrderUnit
		}
	}
	return total
}

// release quiesces the merge worker, then returns every chunk to the
// mapper.
func (t *mediumTier) release() {
	t.ring.quiesce()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.chunks {
		t.mapper.Deallocate(c.base, uintptr(c.size))
		t.counters.OnDeallocate(c.size)
	}
	t.chunks = nil
	for i := range t.frees {
		t.frees[i] = taggedPointer{}
	}
	atomic.StoreUint32(&t.occupancy, 0)
}
