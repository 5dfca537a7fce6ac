package memtier

import "testing"

func newTestHugeTier() (*hugeTier, *fakeMapper) {
	mapper := newFakeMapper()
	var counters Counters
	return newHugeTier(mapper, &counters), mapper
}

func TestHugeTierAllocateDeallocateRoundTrip(t *testing.T) {
	tier, mapper := newTestHugeTier()

	dataPtr, err := tier.Allocate(2 << 30)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if tier.activeBytes() == 0 {
		t.Fatal("expected activeBytes > 0 after allocate")
	}

	raw := dataPtr - hugeHeaderSize
	tier.Deallocate(raw)
	if tier.activeBytes() != 0 {
		t.Fatalf("expected activeBytes 0 after deallocate, got %d", tier.activeBytes())
	}
	if mapper.liveCount() != 0 {
		t.Fatalf("expected the mapper to have reclaimed the block")
	}
}

func TestHugeTierMultipleBlocksTrackedIndependently(t *testing.T) {
	tier, _ := newTestHugeTier()

	ptrA, _ := tier.Allocate(2 << 30)
	ptrB, _ := tier.Allocate(3 << 30)

	tier.Deallocate(ptrA - hugeHeaderSize)
	if tier.activeBytes() == 0 {
		t.Fatalf("expected block B to remain active")
	}
	tier.Deallocate(ptrB - hugeHeaderSize)
	if tier.activeBytes() != 0 {
		t.Fatalf("expected activeBytes 0 once both blocks are freed")
	}
}

func TestHugeTierDoubleFreeAbsorbed(t *testing.T) {
	tier, _ := newTestHugeTier()
	dataPtr, _ := tier.Allocate(2 << 30)
	raw := dataPtr - hugeHeaderSize

	tier.Deallocate(raw)
	tier.Deallocate(raw)
	if tier.activeBytes() != 0 {
		t.Fatalf("expected activeBytes 0 after double free, got %d", tier.activeBytes())
	}
}

func TestHugeTierRelease(t *testing.T) {
	tier, mapper := newTestHugeTier()
	if _, err := tier.Allocate(2 << 30); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	tier.release()
	if tier.activeBytes() != 0 {
		t.Fatalf("expected activeBytes 0 after release")
	}
	if mapper.liveCount() != 0 {
		t.Fatalf("expected release to return the block to the mapper")
	}
}
