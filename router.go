package memtier

import (
	"unsafe"

	"github.com/bnclabs/memtier/api"
)

// router: alignment legalization, tier classification, in-band header
// dispatch on the fast path, and a direct mapper bypass with a
// standalone alignment header on the slow path.
type router struct {
	mapper api.Mapper

	small  *smallTier
	medium *mediumTier
	large  *largeTier
	huge   *hugeTier

	counters *Counters
}

func newRouter(mapper api.Mapper, counters *Counters, small *smallTier, medium *mediumTier, large *largeTier, huge *hugeTier) *router {
	return &router{mapper: mapper, counters: counters, small: small, medium: medium, large: large, huge: huge}
}

// legalizeAlignment collapses 0, 1, any non-power-of-two alignment,
// and any alignment past MaxAlignment to the default alignment.
// Allocate rejects an alignment past MaxAlignment before calling it.
func legalizeAlignment(alignment uintptr) uintptr {
	if alignment <= 1 || !isPowerOfTwo(alignment) || alignment > MaxAlignment {
		return DefaultAlignment
	}
	return alignment
}

// Allocate dispatches to the fast or slow path depending on the
// legalized alignment. An alignment past MaxAlignment fails with
// AllocFailed; under nothrow every failure yields a nil pointer and a
// nil error instead.
func (r *router) Allocate(cache *LocalCache, bytes int64, alignment uintptr, nothrow bool) (unsafe.Pointer, error) {
	if bytes <= 0 || alignment > MaxAlignment {
		return r.fail(nothrow, AllocFailed)
	}
	alignment = legalizeAlignment(alignment)
	if alignment <= DefaultAlignment {
		ptr, err := r.allocateFast(cache, bytes)
		if err != nil {
			return r.fail(nothrow, err)
		}
		return ptr, nil
	}
	return r.allocateSlow(bytes, alignment, nothrow)
}

func (r *router) fail(nothrow bool, err error) (unsafe.Pointer, error) {
	if nothrow {
		return nil, nil
	}
	return nil, err
}

func (r *router) allocateFast(cache *LocalCache, bytes int64) (unsafe.Pointer, error) {
	total := bytes + int64(inbandHeaderSize)

	var (
		dataPtr uintptr
		tierTag uint32
		err     error
	)
	switch {
	case total <= SmallTierBoundary:
		classIdx, ok := classIndexFor(total)
		if !ok {
			return nil, AllocFailed
		}
		dataPtr, err = r.small.Allocate(cache, classIdx)
		tierTag = TierTagSmall
	case total <= MediumTierBoundary:
		order, ok := orderOf(total)
		if !ok {
			return nil, AllocFailed
		}
		dataPtr, err = r.medium.Allocate(order)
		tierTag = TierTagMedium
	case total <= HugeTierBoundary:
		dataPtr, err = r.large.Allocate(total)
		tierTag = TierTagLarge
	default:
		dataPtr, err = r.huge.Allocate(total)
		tierTag = TierTagHuge
	}
	if err != nil {
		return nil, err
	}

	userPtr := dataPtr + inbandHeaderSize
	writeInbandHeader(userPtr, tierTag, dataPtr-tierHeaderSizeFor(tierTag))
	return unsafe.Pointer(userPtr), nil
}

func tierHeaderSizeFor(tierTag uint32) uintptr {
	switch tierTag {
	case TierTagSmall:
		return smallHeaderSize
	case TierTagMedium:
		return mediumHeaderSize
	case TierTagLarge:
		return largeHeaderSize
	default:
		return hugeHeaderSize
	}
}

// allocateSlow handles alignments above the default: a direct mapper
// request sized to guarantee room for both the alignment header and
// an aligned user pointer, bypassing every tier.
func (r *router) allocateSlow(bytes int64, alignment uintptr, nothrow bool) (unsafe.Pointer, error) {
	rawTotal := uintptr(bytes) + alignmentHeaderSize + alignment
	base := r.mapper.Allocate(rawTotal, DefaultAlignment)
	if base == 0 {
		return r.fail(nothrow, AllocFailed)
	}
	r.counters.OnAllocate(int64(rawTotal))

	aligned := alignUp(base+alignmentHeaderSize, alignment)
	writeAlignmentHeader(aligned, base, rawTotal)
	return unsafe.Pointer(aligned), nil
}

// Deallocate checks the alignment sentinel first, then dispatches on
// the in-band header's tier tag.
func (r *router) Deallocate(cache *LocalCache, ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	userPtr := uintptr(ptr)

	if hdr, ok := looksLikeAlignmentHeader(userPtr); ok {
		r.mapper.Deallocate(hdr.raw, hdr.size)
		r.counters.OnDeallocate(int64(hdr.size))
		return
	}

	hdr := inbandHeaderAt(userPtr)
	switch hdr.tierTag {
	case TierTagSmall:
		r.small.Deallocate(cache, hdr.raw)
	case TierTagMedium:
		r.medium.Deallocate(hdr.raw)
	case TierTagLarge:
		r.large.Deallocate(hdr.raw)
	case TierTagHuge:
		r.huge.Deallocate(hdr.raw)
	default:
		errorf("memtier: invalid in-band header at %#x", userPtr)
	}
}
