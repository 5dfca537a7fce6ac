package memtier

import "testing"

func newTestMediumTier(ringCapacity int) (*mediumTier, *fakeMapper) {
	mapper := newFakeMapper()
	var counters Counters
	return newMediumTier(mapper, &counters, ringCapacity), mapper
}

// seedTopOrderChunk allocates and immediately frees a single
// top-order block so later low-order allocations split a real
// in-tier chunk instead of each refilling their own isolated,
// non-buddy chunk straight from the mapper.
func seedTopOrderChunk(t *testing.T, tier *mediumTier) {
	t.Helper()
	ptr, err := tier.Allocate(MediumOrders - 1)
	if err != nil {
		t.Fatalf("seed top-order chunk: %v", err)
	}
	tier.Deallocate(ptr - mediumHeaderSize)
}

// TestMediumTierSplitThenFullyMerge exercises the whole buddy cascade:
// two order-0 allocations out of a seeded top-order chunk split every
// order down from the top, leaving exactly one free sibling per
// order; two deallocations must coalesce all the way back up to a
// single order-9 block.
func TestMediumTierSplitThenFullyMerge(t *testing.T) {
	tier, _ := newTestMediumTier(0) // capacity 0: always synchronous merge
	seedTopOrderChunk(t, tier)

	ptrA, err := tier.Allocate(0)
	if err != nil {
		t.Fatalf("allocate A: %v", err)
	}
	ptrB, err := tier.Allocate(0)
	if err != nil {
		t.Fatalf("allocate B: %v", err)
	}
	if ptrA == ptrB {
		t.Fatalf("expected two distinct order-0 blocks")
	}

	// The first Allocate(0) pops the seeded top-order block and splits
	// it down through every order, leaving one free sibling at each
	// order 0..8. The second Allocate(0) then pops that lone order-0
	// sibling directly, so only orders 1..8 still hold a free entry at
	// this point.
	for order := 1; order < MediumOrders-1; order++ {
		if head, _ := tier.frees[order].load(); head == nil {
			t.Fatalf("order %d: expected exactly one free sibling from the initial split cascade", order)
		}
	}
	if head, _ := tier.frees[0].load(); head != nil {
		t.Fatalf("order 0: expected the lone free sibling to have been consumed by the second allocate")
	}

	tier.Deallocate(ptrA - mediumHeaderSize)
	tier.Deallocate(ptrB - mediumHeaderSize)

	for order := 0; order < MediumOrders-1; order++ {
		if head, _ := tier.frees[order].load(); head != nil {
			t.Fatalf("order %d: expected fully drained after complete coalescing", order)
		}
	}
	head, _ := tier.frees[MediumOrders-1].load()
	if head == nil {
		t.Fatalf("expected the superchunk to be fully reconstituted at the top order")
	}
	if (*mediumHeader)(head).next != nil {
		t.Fatalf("expected exactly one reconstituted superchunk on the top free list")
	}
}

func TestMediumTierAsyncMergeWorker(t *testing.T) {
	tier, _ := newTestMediumTier(MergeRingCapacity)
	seedTopOrderChunk(t, tier)

	ptrA, _ := tier.Allocate(0)
	ptrB, _ := tier.Allocate(0)

	tier.Deallocate(ptrA - mediumHeaderSize)
	tier.Deallocate(ptrB - mediumHeaderSize)
	tier.ring.quiesce()

	head, _ := tier.frees[MediumOrders-1].load()
	if head == nil {
		t.Fatalf("expected the async merge worker to reconstitute the superchunk")
	}
}

func TestMediumTierDoubleFreeAbsorbed(t *testing.T) {
	tier, _ := newTestMediumTier(0)
	ptr, _ := tier.Allocate(0)
	raw := ptr - mediumHeaderSize

	tier.Deallocate(raw)
	tier.Deallocate(raw) // must not panic or double-coalesce
}

func TestMediumTierCorruptedMagicDropped(t *testing.T) {
	tier, _ := newTestMediumTier(0)
	ptr, _ := tier.Allocate(0)
	raw := ptr - mediumHeaderSize
	mediumHeaderAt(raw).magic = 0xBAD

	tier.Deallocate(raw) // CAS on free succeeds, magic check rejects it
	if head, _ := tier.frees[0].load(); head != nil {
		t.Fatalf("corrupted block must not re-enter any free list")
	}
}

// TestMediumTierRefillSizedToRequestedOrder checks that an empty tier
// refills with a chunk sized to the order actually requested, not a
// fixed top-order superchunk.
func TestMediumTierRefillSizedToRequestedOrder(t *testing.T) {
	tier, mapper := newTestMediumTier(0)
	if _, err := tier.Allocate(0); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	mapper.mu.Lock()
	var mapped int64
	for _, buf := range mapper.live {
		mapped += int64(len(buf))
	}
	mapper.mu.Unlock()
	if mapped >= sizeOfOrder(MediumOrders-1) {
		t.Fatalf("expected a want-sized (order 0) refill, mapped %d bytes looks top-order sized", mapped)
	}
}

// TestMediumTierRefillPublishesWhenAnotherOrderIsOccupied exercises
// the occupied_levels branch: once any order already holds a free
// block, a refill at an unrelated, higher order publishes its fresh
// block to that order's free list and retries the search, rather than
// handing the fresh block back directly.
func TestMediumTierRefillPublishesWhenAnotherOrderIsOccupied(t *testing.T) {
	tier, _ := newTestMediumTier(0)

	// Leave an order-0 block resting on its free list: occupancy != 0,
	// but findAndPop(5) below still can't see it (bit 0 is below want).
	seedPtr, err := tier.Allocate(0)
	if err != nil {
		t.Fatalf("seed allocate: %v", err)
	}
	tier.Deallocate(seedPtr - mediumHeaderSize)

	ptr, err := tier.Allocate(5)
	if err != nil {
		t.Fatalf("allocate order 5: %v", err)
	}
	if ptr == 0 {
		t.Fatalf("expected a non-nil block")
	}
	// A direct-use refill would hand the fresh order-5 block straight
	// back without ever touching frees[5]; the occupied_levels branch
	// instead publishes it there and pops it again immediately.
	if head, _ := tier.frees[5].load(); head != nil {
		t.Fatalf("expected the published order-5 block to have been popped back out by the retried search")
	}
	if head, _ := tier.frees[0].load(); head == nil {
		t.Fatalf("expected the unrelated order-0 free block to be untouched")
	}
}

func TestMediumTierRelease(t *testing.T) {
	tier, mapper := newTestMediumTier(0)
	if _, err := tier.Allocate(0); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if mapper.liveCount() == 0 {
		t.Fatalf("expected a chunk mapped")
	}
	tier.release()
	if mapper.liveCount() != 0 {
		t.Fatalf("expected release to return the chunk to the mapper")
	}
}
