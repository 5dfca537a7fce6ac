package memtier

import "errors"

// AllocFailed is returned (or, with nothrow, signalled via a nil
// return) when the OS mapper refuses an underlying mapping or the
// requested alignment exceeds MaxAlignment.
var AllocFailed = errors.New("memtier.allocfailed")

// InvalidPointer names the condition of Deallocate being given a
// pointer lacking a valid tier tag or alignment sentinel. Deallocate
// has no error result and the package has no debug build mode: such a
// pointer is logged (when diagnostics are enabled) and dropped, and
// InvalidPointer is never returned.
var InvalidPointer = errors.New("memtier.invalidpointer")

// DoubleFree is never propagated to a caller; it is recorded here so
// tests and diagnostics can name the condition they are absorbing.
var DoubleFree = errors.New("memtier.doublefree")

// CorruptedMagic is never propagated to a caller; the block that
// triggered it is dropped, not returned to any free list.
var CorruptedMagic = errors.New("memtier.corruptedmagic")

// ErrConfigInvalid flags a malformed Settings value at Pool
// construction.
var ErrConfigInvalid = errors.New("memtier.config.invalid")
