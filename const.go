package memtier

// Sizeinterval is the step between the linear small-tier size
// classes and the granularity every class size is rounded up to.
const Sizeinterval = int64(8)

// DefaultAlignment is used whenever a caller passes alignment 0 or 1;
// both legalize to this default.
const DefaultAlignment = uintptr(16)

// MaxAlignment is the largest alignment Router will honor; above
// this, allocation fails with AllocFailed (or returns nil, nothrow).
const MaxAlignment = uintptr(64 * 1024)

// Tier boundaries, inclusive on their upper bound.
const (
	SmallTierBoundary  = int64(1) << 20         // 1 MiB
	MediumTierBoundary = int64(512) << 20       // 512 MiB
	HugeTierBoundary   = int64(1) << 30         // 1 GiB
)

// MediumOrders is the number of buddy orders in the medium tier.
const MediumOrders = 10

// OrderUnit is the size of order-0 medium blocks.
const OrderUnit = int64(1) << 20 // 1 MiB

// SmallClassCount is the number of small-tier size classes.
const SmallClassCount = 64

// SmallFlushThreshold is the number of TLS deallocations into one
// class stack that triggers a flush of that stack to the global
// stack; the caller's other class stacks are not flushed.
const SmallFlushThreshold = 256

// SmallChunkBlockMultiplier sizes a fresh small-tier chunk as
// max(1 MiB, block_bytes * SmallChunkBlockMultiplier).
const SmallChunkBlockMultiplier = int64(128)

// MergeRingCapacity is the bounded ring buffer size for the medium
// tier's asynchronous merge scheduler.
const MergeRingCapacity = 128

// AlignmentSentinel flags the large-alignment slow-path header.
const AlignmentSentinel = uint64(0xDEADBEEFCAFEBABE)

// Magic values identify which tier's header precedes a block.
const (
	MagicSmall  = uint32(0x534D4853)
	MagicMedium = uint32(0x4D4D4853)
	MagicLarge  = uint32(0x4C4D4853)
	MagicHuge   = uint32(0x484D4853)
)

// Tier tags carried in the in-band ownership header.
const (
	TierTagSmall  = uint32(1)
	TierTagMedium = uint32(2)
	TierTagLarge  = uint32(3)
	TierTagHuge   = uint32(4)
)
