//go:build linux || darwin

package reserve

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/superpool/internal/addr"
)

func reserve(length, align uintptr) (*Region, error) {
	total := length + align
	p, err := unix.MmapPtr(-1, 0, nil, total,
		unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("reserve: mmap %d bytes: %w", total, err)
	}

	// Trim the slack on both sides so the kept range starts aligned.
	base := uintptr(p)
	head := addr.AlignUp(base, align) - base
	tail := total - head - length
	if head > 0 {
		if err := unix.MunmapPtr(p, head); err != nil {
			_ = unix.MunmapPtr(p, total)
			return nil, fmt.Errorf("reserve: trim head: %w", err)
		}
	}
	start := unsafe.Add(p, head)
	if tail > 0 {
		if err := unix.MunmapPtr(unsafe.Add(start, length), tail); err != nil {
			_ = unix.MunmapPtr(start, length+tail)
			return nil, fmt.Errorf("reserve: trim tail: %w", err)
		}
	}

	return &Region{
		Base: base + head,
		Len:  length,
		mem:  unsafe.Slice((*byte)(start), length),
	}, nil
}

func commit(b []byte) error {
	return unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE)
}

func decommit(b []byte) error {
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return err
	}
	return unix.Mprotect(b, unix.PROT_NONE)
}

func release(b []byte) error {
	return unix.MunmapPtr(unsafe.Pointer(unsafe.SliceData(b)), uintptr(len(b)))
}
