// Package bitset provides a fixed-capacity bitmap with word-wise range
// operations and run search.
//
// A Bitmap always occupies Capacity bits; callers pass an explicit limit to
// the search operations when only a prefix of the bitmap is meaningful.
// Bitmap is not safe for concurrent use.
package bitset

import "math/bits"

const (
	// Capacity is the number of bits in a Bitmap.
	Capacity = 8192

	wordBits = 64
	words    = Capacity / wordBits
)

// Bitmap is a fixed-size sequence of Capacity bits. The zero value has every
// bit clear.
type Bitmap [words]uint64

// rangeMask returns the mask of bits in word w that fall in [i, end).
// The caller guarantees the word overlaps the range.
func rangeMask(w, i, end int) uint64 {
	lo := 0
	if i > w*wordBits {
		lo = i - w*wordBits
	}
	hi := wordBits
	if end < (w+1)*wordBits {
		hi = end - w*wordBits
	}
	return (^uint64(0) >> uint(wordBits-(hi-lo))) << uint(lo)
}

// Test reports whether bit i is set.
func (b *Bitmap) Test(i int) bool {
	return b[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// Set sets bit i.
func (b *Bitmap) Set(i int) {
	b[i/wordBits] |= 1 << uint(i%wordBits)
}

// Clear clears bit i.
func (b *Bitmap) Clear(i int) {
	b[i/wordBits] &^= 1 << uint(i%wordBits)
}

// SetRange sets bits [i, i+n).
func (b *Bitmap) SetRange(i, n int) {
	if n <= 0 {
		return
	}
	end := i + n
	for w := i / wordBits; w*wordBits < end; w++ {
		b[w] |= rangeMask(w, i, end)
	}
}

// ClearRange clears bits [i, i+n).
func (b *Bitmap) ClearRange(i, n int) {
	if n <= 0 {
		return
	}
	end := i + n
	for w := i / wordBits; w*wordBits < end; w++ {
		b[w] &^= rangeMask(w, i, end)
	}
}

// Count returns the number of set bits in [i, i+n).
func (b *Bitmap) Count(i, n int) int {
	c := 0
	if n <= 0 {
		return c
	}
	end := i + n
	for w := i / wordBits; w*wordBits < end; w++ {
		c += bits.OnesCount64(b[w] & rangeMask(w, i, end))
	}
	return c
}

// NextSet returns the index of the first set bit in [i, limit), or limit if
// there is none.
func (b *Bitmap) NextSet(i, limit int) int {
	for i < limit {
		w := i / wordBits
		if x := b[w] >> uint(i%wordBits); x != 0 {
			return min(i+bits.TrailingZeros64(x), limit)
		}
		i = (w + 1) * wordBits
	}
	return limit
}

// NextClear returns the index of the first clear bit in [i, limit), or limit
// if there is none.
func (b *Bitmap) NextClear(i, limit int) int {
	for i < limit {
		w := i / wordBits
		// Bits shifted in from the top are zero, so they never read as clear.
		if x := ^b[w] >> uint(i%wordBits); x != 0 {
			return min(i+bits.TrailingZeros64(x), limit)
		}
		i = (w + 1) * wordBits
	}
	return limit
}

// FindClearRun returns the start of the first run of n clear bits that lies
// entirely inside [i, limit).
func (b *Bitmap) FindClearRun(i, limit, n int) (int, bool) {
	for {
		i = b.NextClear(i, limit)
		end := i + n
		if end > limit {
			return 0, false
		}
		set := b.NextSet(i, end)
		if set == end {
			return i, true
		}
		i = set + 1
	}
}

// LongestClearRun returns the length of the longest run of clear bits in
// [0, limit).
func (b *Bitmap) LongestClearRun(limit int) int {
	longest := 0
	for i := 0; i < limit; {
		start := b.NextClear(i, limit)
		if start == limit {
			break
		}
		end := b.NextSet(start, limit)
		longest = max(longest, end-start)
		i = end
	}
	return longest
}

// Reset clears every bit.
func (b *Bitmap) Reset() {
	*b = Bitmap{}
}
