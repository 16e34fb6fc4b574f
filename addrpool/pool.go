//go:build amd64 || arm64 || loong64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package addrpool

import (
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/joshuapare/superpool/internal/addr"
	"github.com/joshuapare/superpool/internal/bitset"
	"github.com/joshuapare/superpool/internal/check"
)

// pool tracks the super-pages of one reserved range [begin, end).
type pool struct {
	begin     uintptr
	end       uintptr
	unit      uintptr
	totalBits int

	mu sync.Mutex
	// bits holds one bit per super-page, 1 = allocated. Only the first
	// totalBits bits are used.
	bits bitset.Bitmap
	// hint is where findChunk starts scanning. The bits between the previous
	// and the current hint were all set when it last moved. It never moves
	// back, so bits below it may have been freed since.
	hint int
}

func newPool(base, length, unit uintptr) *pool {
	if length == 0 || !addr.IsAligned(length, unit) {
		check.Fail("pool length %d is not a positive multiple of the super-page size %d", length, unit)
	}
	if !addr.IsAligned(base, unit) {
		check.Fail("pool base %#x is not aligned to the super-page size %d", base, unit)
	}
	if length/unit > MaxUnits {
		check.Fail("pool of %s exceeds the maximum pool size of %s",
			humanize.IBytes(uint64(length)), humanize.IBytes(uint64(MaxUnits)*uint64(unit)))
	}
	end, ok := addr.AddOverflowSafe(base, length)
	if !ok {
		check.Fail("pool [%#x, +%d) wraps around the address space", base, length)
	}
	return &pool{
		begin:     base,
		end:       end,
		unit:      unit,
		totalBits: int(length / unit),
	}
}

// findChunk claims the first run of free super-pages covering size bytes and
// returns its address. It returns false, with the bitmap untouched, when no
// such run exists.
func (p *pool) findChunk(size uintptr) (uintptr, bool) {
	if size == 0 || !addr.IsAligned(size, p.unit) {
		check.Fail("chunk size %d is not a positive multiple of the super-page size %d", size, p.unit)
	}
	if size/p.unit > uintptr(p.totalBits) {
		return 0, false
	}
	need := int(size / p.unit)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.hint = p.bits.NextClear(p.hint, p.totalBits)
	start, ok := p.bits.FindClearRun(p.hint, p.totalBits, need)
	if !ok && p.hint > 0 {
		// Runs starting at or after the hint were ruled out above.
		limit := min(p.hint+need-1, p.totalBits)
		start, ok = p.bits.FindClearRun(0, limit, need)
	}
	if !ok {
		return 0, false
	}

	if check.DCheckIsOn && p.bits.Count(start, need) != 0 {
		check.Fail("run [%d, %d) handed out while partly allocated", start, start+need)
	}
	p.bits.SetRange(start, need)
	if start == p.hint {
		p.hint = start + need
	}

	chunk := p.begin + uintptr(start)*p.unit
	if check.DCheckIsOn && chunk+size > p.end {
		check.Fail("chunk [%#x, +%d) ends past pool end %#x", chunk, size, p.end)
	}
	return chunk, true
}

// freeChunk releases the super-pages covering [chunk, chunk+size). Every one
// of them must be allocated.
func (p *pool) freeChunk(chunk, size uintptr) {
	if size == 0 || !addr.IsAligned(size, p.unit) {
		check.Fail("chunk size %d is not a positive multiple of the super-page size %d", size, p.unit)
	}
	if !addr.IsAligned(chunk, p.unit) {
		check.Fail("chunk %#x is not aligned to the super-page size %d", chunk, p.unit)
	}
	if !addr.Within(p.begin, p.end, chunk, size) {
		check.Fail("chunk [%#x, +%d) is outside pool [%#x, %#x)", chunk, size, p.begin, p.end)
	}
	beg := int((chunk - p.begin) / p.unit)
	n := int(size / p.unit)

	p.mu.Lock()
	defer p.mu.Unlock()

	if got := p.bits.Count(beg, n); got != n {
		check.Fail("freeing [%#x, +%d): %d of %d super-pages are not allocated", chunk, size, n-got, n)
	}
	p.bits.ClearRange(beg, n)
}

// contains reports whether a falls inside the pool's range.
func (p *pool) contains(a uintptr) bool {
	return p.begin <= a && a < p.end
}

func (p *pool) overlaps(begin, end uintptr) bool {
	return begin < p.end && p.begin < end
}

func (p *pool) stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Begin:          p.begin,
		End:            p.end,
		UnitSize:       p.unit,
		TotalUnits:     p.totalBits,
		AllocatedUnits: p.bits.Count(0, p.totalBits),
		LargestFreeRun: p.bits.LongestClearRun(p.totalBits),
		Hint:           p.hint,
	}
}
