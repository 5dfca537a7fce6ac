// Package lib supplies small, dependency-free bit-twiddling helpers
// used by the allocator's medium tier.
package lib
