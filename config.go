package memtier

import (
	s "github.com/bnclabs/gosettings"
)

// Settings alias: a plain map of tunables, with typed accessors
// supplied by gosettings.
type Settings = s.Settings

// Defaultsettings returns the package's tunables as a Settings map.
// New reads only "small.flushthreshold" and "medium.ringcapacity";
// the other keys report the built-in values, and overriding them has
// no effect.
//
// "allocator" (string, default: "buddy")
//
//	medium-tier allocator algorithm; "buddy" is the only one this
//	package implements.
//
// "small.flushthreshold" (int64, default: 256)
//
//	TLS deallocation count, per class stack, that triggers a flush of
//	that stack to the global stack.
//
// "small.chunkmultiplier" (int64, default: 128)
//
//	fresh small-tier chunk size, in multiples of the class's block size.
//
// "medium.ringcapacity" (int64, default: 128)
//
//	bounded merge-ring capacity.
//
// "max.alignment" (int64, default: 65536)
//
//	largest alignment Router will honor.
//
// "nothrow" (bool, default: false)
//
//	nothrow default; Pool.Allocate always takes nothrow from its caller.
func Defaultsettings() Settings {
	return Settings{
		"allocator":             "buddy",
		"small.flushthreshold":  int64(SmallFlushThreshold),
		"small.chunkmultiplier": SmallChunkBlockMultiplier,
		"medium.ringcapacity":   int64(MergeRingCapacity),
		"max.alignment":         int64(MaxAlignment),
		"nothrow":               false,
	}
}
