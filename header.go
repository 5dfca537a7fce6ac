package memtier

import "unsafe"

// inbandHeader is the fixed-width record immediately preceding every
// user pointer on the default-alignment path. Layout is stable across
// a build: offset 0 carries the 4-byte tier tag, offset
// 8 the 8-byte raw tier-header address — 16 bytes total on a 64-bit
// platform with natural alignment padding between the two fields.
type inbandHeader struct {
	tierTag uint32
	_       uint32
	raw     uintptr
}

const inbandHeaderSize = uintptr(unsafe.Sizeof(inbandHeader{}))

// alignmentHeader is written just before the aligned user pointer on
// the large-alignment slow path. Its presence is signalled by
// AlignmentSentinel at userPtr - alignmentHeaderSize.
type alignmentHeader struct {
	tag  uint64
	raw  uintptr
	size uintptr
}

const alignmentHeaderSize = uintptr(unsafe.Sizeof(alignmentHeader{}))

func inbandHeaderAt(userPtr uintptr) *inbandHeader {
	return (*inbandHeader)(unsafe.Pointer(userPtr - inbandHeaderSize))
}

func writeInbandHeader(userPtr uintptr, tierTag uint32, raw uintptr) {
	hdr := inbandHeaderAt(userPtr)
	hdr.tierTag = tierTag
	hdr.raw = raw
}

func alignmentHeaderAt(userPtr uintptr) *alignmentHeader {
	return (*alignmentHeader)(unsafe.Pointer(userPtr - alignmentHeaderSize))
}

func writeAlignmentHeader(userPtr, raw, size uintptr) {
	hdr := alignmentHeaderAt(userPtr)
	hdr.tag = AlignmentSentinel
	hdr.raw = raw
	hdr.size = size
}

// looksLikeAlignmentHeader reads the bytes immediately preceding
// userPtr as a candidate alignment header and reports whether the
// sentinel matches.
func looksLikeAlignmentHeader(userPtr uintptr) (*alignmentHeader, bool) {
	if userPtr < alignmentHeaderSize {
		return nil, false
	}
	hdr := alignmentHeaderAt(userPtr)
	return hdr, hdr.tag == AlignmentSentinel
}
