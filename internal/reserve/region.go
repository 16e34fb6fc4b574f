// Package reserve reserves, commits and releases ranges of virtual address
// space.
//
// A reservation is inaccessible until committed; it consumes address space
// but no memory. The pool manager never calls this package: callers reserve
// a range here and then register it with addrpool.Manager.Add.
package reserve

import (
	"errors"
	"fmt"
	"os"

	"github.com/joshuapare/superpool/internal/addr"
)

// ErrUnsupported is returned on platforms without anonymous mmap support.
var ErrUnsupported = errors.New("reserve: address space reservation not supported on this platform")

// Region is a reserved range [Base, Base+Len) of virtual address space.
type Region struct {
	Base uintptr
	Len  uintptr

	mem      []byte // view over the whole reservation, nil once released
	released bool
}

// PageSize returns the OS page size.
func PageSize() uintptr {
	return uintptr(os.Getpagesize())
}

// Reserve reserves length bytes of address space whose base is a multiple
// of align. length must be a positive multiple of the page size and align a
// power of two; alignments below the page size are raised to it.
func Reserve(length, align uintptr) (*Region, error) {
	page := PageSize()
	if length == 0 || !addr.IsAligned(length, page) {
		return nil, fmt.Errorf("reserve: length %d is not a positive multiple of the page size %d", length, page)
	}
	if !addr.IsPowerOfTwo(align) {
		return nil, fmt.Errorf("reserve: alignment %d is not a power of two", align)
	}
	align = max(align, page)
	if _, ok := addr.AddOverflowSafe(length, align); !ok {
		return nil, fmt.Errorf("reserve: length %d with alignment %d overflows the address space", length, align)
	}
	return reserve(length, align)
}

// End returns the first address past the region.
func (r *Region) End() uintptr {
	return r.Base + r.Len
}

// span returns the part of the reservation covering [a, a+n).
func (r *Region) span(a, n uintptr) ([]byte, error) {
	if r.released {
		return nil, fmt.Errorf("reserve: region %#x already released", r.Base)
	}
	if n == 0 || !addr.Within(r.Base, r.End(), a, n) {
		return nil, fmt.Errorf("reserve: range [%#x, +%d) outside region [%#x, %#x)", a, n, r.Base, r.End())
	}
	off := a - r.Base
	return r.mem[off : off+n : off+n], nil
}

// Bytes returns the memory of [a, a+n). The range must be committed before
// it is read or written.
func (r *Region) Bytes(a, n uintptr) ([]byte, error) {
	return r.span(a, n)
}

// Commit makes [a, a+n) readable and writable. a and n should be page
// aligned; the OS rounds partial pages outward.
func (r *Region) Commit(a, n uintptr) error {
	b, err := r.span(a, n)
	if err != nil {
		return err
	}
	return commit(b)
}

// Decommit returns the memory backing [a, a+n) to the OS and makes the range
// inaccessible again. The address space stays reserved.
func (r *Region) Decommit(a, n uintptr) error {
	b, err := r.span(a, n)
	if err != nil {
		return err
	}
	return decommit(b)
}

// Release unmaps the whole reservation. Releasing twice is a no-op.
func (r *Region) Release() error {
	if r.released {
		return nil
	}
	if err := release(r.mem); err != nil {
		return err
	}
	r.released = true
	r.mem = nil
	return nil
}
