package memtier

import (
	"sync"
	"testing"
	"unsafe"
)

func newTestPool() *Pool {
	return New(newFakeMapper(), nil)
}

func TestPoolSmallHitPathSameThreadReuse(t *testing.T) {
	p := newTestPool()
	cache := p.NewLocalCache()

	ptr1, err := p.AllocateFast(cache, 64, 0, Origin{File: "x.go", Line: 1}, false)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	p.DeallocateFast(cache, ptr1)

	ptr2, err := p.AllocateFast(cache, 64, 0, Origin{File: "x.go", Line: 2}, false)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if ptr1 != ptr2 {
		t.Fatalf("expected LIFO reuse on the same thread's cache, got %p want %p", ptr2, ptr1)
	}
	p.DeallocateFast(cache, ptr2)
	if err := p.Teardown(cache); err != nil {
		t.Fatalf("teardown: %v", err)
	}
}

func TestPoolLargeAlignmentRoundTrip(t *testing.T) {
	p := newTestPool()
	ptr, err := p.Allocate(4096, 4096, Origin{}, false)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if uintptr(ptr)%4096 != 0 {
		t.Fatalf("pointer %p is not 4096-byte aligned", ptr)
	}
	p.Deallocate(ptr)
	if err := p.Teardown(nil); err != nil {
		t.Fatalf("teardown: %v", err)
	}
}

func TestPoolCrossThreadFree(t *testing.T) {
	p := newTestPool()
	cacheA := p.NewLocalCache()
	cacheB := p.NewLocalCache()

	ptr, err := p.AllocateFast(cacheA, 128, 0, Origin{}, false)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	p.DeallocateFast(cacheB, ptr) // freed by a different thread's cache

	if err := p.Teardown(nil); err != nil {
		// cacheA/cacheB still hold whatever each flushed independently;
		// a non-nil cache must be supplied per-thread in real use, but
		// correctness of the free itself does not depend on which
		// cache performed it.
		t.Fatalf("teardown: %v", err)
	}
}

func TestPoolBalancedCountersAfterTeardown(t *testing.T) {
	p := newTestPool()
	cache := p.NewLocalCache()

	sizes := []int64{16, 256, 4000, 2 << 20, 600 << 20}
	var ptrs []unsafe.Pointer
	for _, size := range sizes {
		ptr, err := p.AllocateFast(cache, size, 0, Origin{}, false)
		if err != nil {
			t.Fatalf("allocate %d: %v", size, err)
		}
		ptrs = append(ptrs, ptr)
	}
	for _, ptr := range ptrs {
		p.DeallocateFast(cache, ptr)
	}
	if err := p.Teardown(cache); err != nil {
		t.Fatalf("teardown: %v", err)
	}
}

func TestPoolConcurrentStress(t *testing.T) {
	p := newTestPool()
	const goroutines, iterations = 8, 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(n int) {
			defer wg.Done()
			cache := p.NewLocalCache()
			for i := 0; i < iterations; i++ {
				size := int64(8 + (n*37+i)%2048)
				ptr, err := p.AllocateFast(cache, size, 0, Origin{}, false)
				if err != nil {
					t.Errorf("allocate: %v", err)
					return
				}
				p.DeallocateFast(cache, ptr)
			}
			cache.Flush(p.small)
		}(g)
	}
	wg.Wait()

	if err := p.Teardown(nil); err != nil {
		t.Fatalf("teardown: %v", err)
	}
}

func TestPoolStatsReportsActiveBytes(t *testing.T) {
	p := newTestPool()
	ptr, err := p.Allocate(2<<30, 0, Origin{}, false)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got := p.Stats().HugeActive; got <= 0 {
		t.Fatalf("expected HugeActive > 0, got %d", got)
	}
	p.Deallocate(ptr)
	if got := p.Stats().HugeActive; got != 0 {
		t.Fatalf("expected HugeActive 0 after free, got %d", got)
	}
	_ = p.Teardown(nil)
}
