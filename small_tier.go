package memtier

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/bnclabs/memtier/api"
)

// smallHeader is the small-tier block header: magic, bucket index,
// block size, an atomic free flag, an intrusive next pointer, and an
// in_tls ownership flag. The flag is a uint32 rather than a single
// byte — Go has no single-byte atomic primitive, and every field
// touched by a CAS needs natural alignment anyway.
type smallHeader struct {
	magic  uint32
	bucket uint32
	free   uint32 // atomic: 0 free-flag-clear(allocated) / 1 free-flag-set
	inTLS  uint32 // atomic: 1 while owned by some thread's TLS stack
	size   int64
	next   unsafe.Pointer // *smallHeader
}

const smallHeaderSize = uintptr(unsafe.Sizeof(smallHeader{}))

func smallHeaderAt(raw uintptr) *smallHeader {
	return (*smallHeader)(unsafe.Pointer(raw))
}

func (h *smallHeader) dataPtr() uintptr {
	return uintptr(unsafe.Pointer(h)) + smallHeaderSize
}

// LocalCache is the per-thread small-tier cache: 64 singly linked
// stacks, each with its own deallocation counter; a stack is flushed
// alone when its counter reaches the threshold, and the other stacks
// are left in place. Go has no portable thread-local-
// storage primitive, so a LocalCache is an explicit handle: obtain one
// per long-lived worker goroutine with Pool.NewLocalCache and pass it
// to Pool.AllocateFast/DeallocateFast. The plain Pool.Allocate/
// Deallocate pass a nil cache, which still implements every invariant
// correctly; it simply forgoes the TLS locality optimization and
// always goes through the global stack. Sharing one LocalCache across
// goroutines breaks its single-owner invariant.
type LocalCache struct {
	stacks  [SmallClassCount]unsafe.Pointer // *smallHeader, single-owner
	counts  [SmallClassCount]int
}

func newLocalCache() *LocalCache { return &LocalCache{} }

// Flush drains every non-empty class stack to t's global buckets.
func (c *LocalCache) Flush(t *smallTier) {
	for classIdx := 0; classIdx < SmallClassCount; classIdx++ {
		c.flushClass(t, classIdx)
	}
}

func (c *LocalCache) flushClass(t *smallTier, classIdx int) {
	head := c.stacks[classIdx]
	if head == nil {
		return
	}
	c.stacks[classIdx] = nil // (a) exchange-to-null before anything else is load-bearing

	first := (*smallHeader)(head)
	tail := first
	for tail.next != nil {
		tail = (*smallHeader)(tail.next) // (b) walk to find the tail
	}

	t.publishChain(classIdx, first, tail) // (c) CAS-splice onto the global head

	for n := first; ; {
		next := n.next
		atomic.StoreUint32(&n.inTLS, 0) // (d) clear in_tls only after splice is visible
		if next == nil {
			break
		}
		n = (*smallHeader)(next)
	}
	c.counts[classIdx] = 0 // (e)
}

type smallChunk struct {
	base uintptr
	size int64
}

// smallTier: 64 size-class buckets, a chunk-registry mutex guarding
// OS refill, and one lock-free (mutex-fallback, see taggedPointer)
// global stack per class.
type smallTier struct {
	mapper         api.Mapper
	counters       *Counters
	flushThreshold int

	mu      sync.Mutex // chunk-registry mutex
	chunks  []smallChunk
	globals [SmallClassCount]taggedPointer
}

func newSmallTier(mapper api.Mapper, counters *Counters, flushThreshold int) *smallTier {
	return &smallTier{mapper: mapper, counters: counters, flushThreshold: flushThreshold}
}

// Allocate tries the TLS stack, then the global stack, then falls
// back to OS refill.
func (t *smallTier) Allocate(cache *LocalCache, classIdx int) (uintptr, error) {
	if cache != nil {
		if head := cache.stacks[classIdx]; head != nil {
			hdr := (*smallHeader)(head)
			cache.stacks[classIdx] = hdr.next
			t.claim(hdr)
			return hdr.dataPtr(), nil
		}
	}
	if hdr := t.popGlobal(classIdx); hdr != nil {
		t.claim(hdr)
		return hdr.dataPtr(), nil
	}
	hdr, err := t.refill(classIdx, smallClassSizes[classIdx])
	if err != nil {
		return 0, err
	}
	t.claim(hdr)
	return hdr.dataPtr(), nil
}

// claim performs the allocate-side state transition shared by all
// three sources: set magic, clear free flag, clear in_tls.
func (t *smallTier) claim(hdr *smallHeader) {
	hdr.magic = MagicSmall
	atomic.StoreUint32(&hdr.free, 0)
	atomic.StoreUint32(&hdr.inTLS, 0)
}

// Deallocate returns a block to the TLS stack (if cache is non-nil
// and under the flush threshold) or the global stack.
func (t *smallTier) Deallocate(cache *LocalCache, raw uintptr) {
	hdr := smallHeaderAt(raw)

	if !atomic.CompareAndSwapUint32(&hdr.free, 0, 1) {
		return // DoubleFree: absorbed silently
	}
	if atomic.LoadUint32(&hdr.inTLS) == 1 {
		// Already cached by some thread; the free-flag CAS above
		// already rejects this case under correct usage, so this is
		// a second, independent check rather than the only guard.
		return
	}
	if hdr.magic != MagicSmall {
		errorf("memtier: corrupted magic on small block %#x", raw)
		return // CorruptedMagic: drop, never re-enters a free list
	}

	hdr.magic = 0
	classIdx := int(hdr.bucket)
	if cache != nil {
		atomic.StoreUint32(&hdr.inTLS, 1)
		hdr.next = cache.stacks[classIdx]
		cache.stacks[classIdx] = unsafe.Pointer(hdr)
		cache.counts[classIdx]++
		if cache.counts[classIdx] >= t.flushThreshold {
			cache.flushClass(t, classIdx)
		}
		return
	}
	t.pushGlobal(classIdx, hdr)
}

func (t *smallTier) pushGlobal(classIdx int, hdr *smallHeader) {
	head, tag := t.globals[classIdx].load()
	for {
		hdr.next = head
		if t.globals[classIdx].compareAndSwap(head, tag, unsafe.Pointer(hdr)) {
			return
		}
		head, tag = t.globals[classIdx].load()
	}
}

// publishChain splices [first..tail] onto the global head in one CAS
// loop, used both by a fresh refill's surplus chain and by flush.
func (t *smallTier) publishChain(classIdx int, first, tail *smallHeader) {
	head, tag := t.globals[classIdx].load()
	for {
		tail.next = head
		if t.globals[classIdx].compareAndSwap(head, tag, unsafe.Pointer(first)) {
			return
		}
		head, tag = t.globals[classIdx].load()
	}
}

func (t *smallTier) popGlobal(classIdx int) *smallHeader {
	for {
		head, tag := t.globals[classIdx].load()
		if head == nil {
			return nil
		}
		hdr := (*smallHeader)(head)
		if t.globals[classIdx].compareAndSwap(head, tag, hdr.next) {
			return hdr
		}
	}
}

// refill carves a fresh OS chunk into a chain of blocks for classIdx.
func (t *smallTier) refill(classIdx int, classSize int64) (*smallHeader, error) {
	blockBytes := alignUp(smallHeaderSize+uintptr(classSize), DefaultAlignment)

	t.mu.Lock()
	defer t.mu.Unlock()

	chunkBytes := max64(int64(1)<<20, int64(blockBytes)*SmallChunkBlockMultiplier)
	base := t.mapper.Allocate(uintptr(chunkBytes), DefaultAlignment)
	if base == 0 {
		return nil, AllocFailed
	}
	t.counters.OnAllocate(chunkBytes)

	blockCount := chunkBytes / int64(blockBytes)
	if blockCount == 0 {
		t.mapper.Deallocate(base, uintptr(chunkBytes))
		t.counters.OnDeallocate(chunkBytes)
		return nil, AllocFailed
	}
	t.chunks = append(t.chunks, smallChunk{base: base, size: chunkBytes})

	var first, prev *smallHeader
	for i := int64(0); i < blockCount; i++ {
		addr := base + uintptr(i)*blockBytes
		hdr := smallHeaderAt(addr)
		hdr.magic = MagicSmall
		hdr.bucket = uint32(classIdx)
		hdr.size = classSize
		hdr.free = 1
		hdr.inTLS = 0
		hdr.next = nil
		if prev != nil {
			prev.next = unsafe.Pointer(hdr)
		}
		if i == 0 {
			first = hdr
		}
		prev = hdr
	}

	if blockCount > 1 {
		second := (*smallHeader)(first.next)
		t.publishChain(classIdx, second, prev)
	}
	return first, nil
}

// release unmaps every chunk still held by this tier.
func (t *smallTier) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.chunks {
		t.mapper.Deallocate(ch.base, uintptr(ch.size))
		t.counters.OnDeallocate(ch.size)
	}
	t.chunks = nil
	for i := range t.globals {
		t.globals[i] = taggedPointer{}
	}
}
