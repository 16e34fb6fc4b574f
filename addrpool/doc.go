// Package addrpool sub-allocates super-page-aligned chunks of address space
// from large ranges that were reserved up front.
//
// # Overview
//
// A Manager owns up to NumPools pools. Each pool covers one contiguous,
// already reserved range and tracks its super-pages with a fixed-capacity
// bitmap (1 = allocated). The manager never reserves, commits or releases OS
// memory; see internal/reserve for the caller side of that contract.
//
//	m := addrpool.Instance()
//	h := m.Add(region.Base, region.Len)
//
//	chunk, err := m.Alloc(h, 4*addrpool.SuperPageSize)
//	if errors.Is(err, addrpool.ErrExhausted) {
//	    // fall back to another pool or to the OS
//	}
//	...
//	m.Free(h, chunk, 4*addrpool.SuperPageSize)
//	m.Remove(h)
//
// # Search
//
// Alloc is first-fit. Each pool keeps a search hint: the bit index at which
// the scan starts. The hint moves forward over allocated super-pages and
// past a run claimed exactly at the hint, and it never moves back; a free
// below the hint leaves it in place. When no run is found from the hint the
// pool rescans the part of the bitmap below it, so freed super-pages are
// always reachable. The hint only affects how much of the bitmap is scanned,
// never which super-pages are considered free.
//
// # Failures
//
// Misuse is fatal: an invalid handle, a full pool table, a pool larger than
// MaxUnits super-pages, an unaligned or out-of-range address or size, and
// freeing super-pages that are not allocated all panic with an assertion
// failure (see internal/check). Running out of space is not misuse: Alloc
// returns an error wrapping ErrExhausted and leaves the pool unchanged, and
// the caller decides how to fall back.
//
// # Thread Safety
//
// Every method is safe for concurrent use. Each pool has its own lock, so
// pools never contend with each other; the handle table has a separate
// read-write lock that Add and Remove take for writing.
//
// # Platforms
//
// The manager is built only for 64-bit architectures, where reserving
// gigabytes of address space up front is cheap. Supported reports whether
// it is available in the current build.
package addrpool
