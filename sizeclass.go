package memtier

import (
	"math"
	"sort"
)

// smallClassSizes is the compile-time size-class table for the small
// tier: classes 0..31 step by 8 bytes from 8 to 256 (linear), classes
// 32..63 follow a geometric-plus-adjustment schedule that terminates
// exactly at 1 MiB (64 classes total, landing exactly on that
// boundary rather than an arbitrary configured maxblock).
var smallClassSizes = computeSmallClassSizes()

func computeSmallClassSizes() [SmallClassCount]int64 {
	var sizes [SmallClassCount]int64
	for i := 0; i < 32; i++ {
		sizes[i] = int64(i+1) * 8
	}

	const base = float64(256)
	const top = float64(1 << 20)
	ratio := top / base
	for j := 0; j < 32; j++ {
		frac := float64(j+1) / 32.0
		raw := base * math.Pow(ratio, frac)
		sizes[32+j] = roundUp8(int64(math.Ceil(raw)))
	}
	sizes[SmallClassCount-1] = int64(1) << 20

	for i := 1; i < SmallClassCount; i++ {
		if sizes[i] <= sizes[i-1] {
			sizes[i] = sizes[i-1] + Sizeinterval
		}
	}
	sizes[SmallClassCount-1] = int64(1) << 20
	if sizes[SmallClassCount-2] >= sizes[SmallClassCount-1] {
		panic("memtier: size-class table failed to terminate at 1 MiB")
	}
	return sizes
}

// classIndexFor returns the smallest size class able to hold n bytes,
// via binary search on the compile-time table.
func classIndexFor(n int64) (int, bool) {
	if n <= 0 || n > smallClassSizes[SmallClassCount-1] {
		return 0, false
	}
	idx := sort.Search(SmallClassCount, func(i int) bool {
		return smallClassSizes[i] >= n
	})
	if idx >= SmallClassCount {
		return 0, false
	}
	return idx, true
}
