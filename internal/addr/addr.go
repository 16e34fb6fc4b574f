// Package addr provides overflow-safe arithmetic and alignment helpers for
// raw virtual addresses.
package addr

import "math"

// AddOverflowSafe adds a and b, returning ok = false when the result would
// wrap around the address space.
func AddOverflowSafe(a, b uintptr) (uintptr, bool) {
	if a > math.MaxUint-b {
		return 0, false
	}
	return a + b, true
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// AlignUp returns n aligned up to the next multiple of align.
// align must be a power of two.
//
// Example:
//
//	AlignUp(1, 4096)    = 4096
//	AlignUp(4096, 4096) = 4096
//	AlignUp(4097, 4096) = 8192
func AlignUp(n, align uintptr) uintptr {
	mask := align - 1
	return (n + mask) &^ mask
}

// AlignDown returns n aligned down to a multiple of align.
// align must be a power of two.
func AlignDown(n, align uintptr) uintptr {
	return n &^ (align - 1)
}

// IsAligned reports whether n is a multiple of align.
// align must be a power of two.
func IsAligned(n, align uintptr) bool {
	return n&(align-1) == 0
}

// Within reports whether [off, off+length) lies inside [begin, end).
func Within(begin, end, off, length uintptr) bool {
	if off < begin {
		return false
	}
	last, ok := AddOverflowSafe(off, length)
	if !ok {
		return false
	}
	return last <= end
}
