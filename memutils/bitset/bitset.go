// Package bitset provides the fixed-size bit vector that allocators in this module use to track
// which pages or slots are occupied.
package bitset

import (
	"fmt"
	"math/bits"
)

const wordBits = 64

// Bitset is a fixed-size vector of bits. It is not safe for concurrent use: owners synchronize
// access alongside the rest of their bookkeeping.
type Bitset struct {
	words []uint64
	size  int
	count int
}

// New creates a Bitset capable of holding size bits, all clear
func New(size int) *Bitset {
	if size < 0 {
		panic(fmt.Sprintf("attempted to create a bitset with negative size %d", size))
	}

	return &Bitset{
		words: make([]uint64, (size+wordBits-1)/wordBits),
		size:  size,
	}
}

// Size is the number of bits in the set
func (b *Bitset) Size() int { return b.size }

// Count is the number of set bits
func (b *Bitset) Count() int { return b.count }

func (b *Bitset) checkIndex(index int) {
	if index < 0 || index >= b.size {
		panic(fmt.Sprintf("bit index %d is out of range for a bitset of size %d", index, b.size))
	}
}

func (b *Bitset) checkRange(start, count int) {
	if count < 0 || start < 0 || start+count > b.size {
		panic(fmt.Sprintf("bit range [%d, %d) is out of range for a bitset of size %d", start, start+count, b.size))
	}
}

// Set marks a single bit. Setting an already-set bit has no effect.
func (b *Bitset) Set(index int) {
	b.checkIndex(index)

	word, mask := index/wordBits, uint64(1)<<(index%wordBits)
	if b.words[word]&mask == 0 {
		b.words[word] |= mask
		b.count++
	}
}

// Clear unmarks a single bit. Clearing an already-clear bit has no effect.
func (b *Bitset) Clear(index int) {
	b.checkIndex(index)

	word, mask := index/wordBits, uint64(1)<<(index%wordBits)
	if b.words[word]&mask != 0 {
		b.words[word] &^= mask
		b.count--
	}
}

// Test reports whether a single bit is set
func (b *Bitset) Test(index int) bool {
	b.checkIndex(index)

	return b.words[index/wordBits]&(uint64(1)<<(index%wordBits)) != 0
}

// rangeMask returns the mask of bits in word wordIndex that fall within [start, end)
func rangeMask(wordIndex, start, end int) uint64 {
	wordStart := wordIndex * wordBits
	lo := start - wordStart
	if lo < 0 {
		lo = 0
	}
	hi := end - wordStart
	if hi > wordBits {
		hi = wordBits
	}

	if hi-lo == wordBits {
		return ^uint64(0)
	}
	return ((uint64(1) << (hi - lo)) - 1) << lo
}

// SetRange marks count bits beginning at start
func (b *Bitset) SetRange(start, count int) {
	b.checkRange(start, count)
	if count == 0 {
		return
	}

	end := start + count
	for word := start / wordBits; word <= (end-1)/wordBits; word++ {
		mask := rangeMask(word, start, end)
		b.count += bits.OnesCount64(mask &^ b.words[word])
		b.words[word] |= mask
	}
}

// ClearRange unmarks count bits beginning at start
func (b *Bitset) ClearRange(start, count int) {
	b.checkRange(start, count)
	if count == 0 {
		return
	}

	end := start + count
	for word := start / wordBits; word <= (end-1)/wordBits; word++ {
		mask := rangeMask(word, start, end)
		b.count -= bits.OnesCount64(mask & b.words[word])
		b.words[word] &^= mask
	}
}

// AllSet reports whether every bit in [start, start+count) is set. An empty range is always set.
func (b *Bitset) AllSet(start, count int) bool {
	b.checkRange(start, count)
	if count == 0 {
		return true
	}

	end := start + count
	for word := start / wordBits; word <= (end-1)/wordBits; word++ {
		mask := rangeMask(word, start, end)
		if b.words[word]&mask != mask {
			return false
		}
	}

	return true
}

// NoneSet reports whether every bit in [start, start+count) is clear
func (b *Bitset) NoneSet(start, count int) bool {
	b.checkRange(start, count)
	if count == 0 {
		return true
	}

	end := start + count
	for word := start / wordBits; word <= (end-1)/wordBits; word++ {
		if b.words[word]&rangeMask(word, start, end) != 0 {
			return false
		}
	}

	return true
}

// FirstClear returns the lowest clear bit, or -1 if every bit is set
func (b *Bitset) FirstClear() int {
	if b.count == b.size {
		return -1
	}

	for wordIndex, word := range b.words {
		if word == ^uint64(0) {
			continue
		}

		index := wordIndex*wordBits + bits.TrailingZeros64(^word)
		if index >= b.size {
			return -1
		}
		return index
	}

	return -1
}

// FirstSet returns the lowest set bit, or -1 if no bit is set
func (b *Bitset) FirstSet() int {
	if b.count == 0 {
		return -1
	}

	for wordIndex, word := range b.words {
		if word != 0 {
			return wordIndex*wordBits + bits.TrailingZeros64(word)
		}
	}

	return -1
}

// Visit calls visitor with the index of every set bit in ascending order until it returns false
func (b *Bitset) Visit(visitor func(index int) bool) {
	for wordIndex, word := range b.words {
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			if !visitor(wordIndex*wordBits + bit) {
				return
			}
			word &^= uint64(1) << bit
		}
	}
}

// Reset clears every bit
func (b *Bitset) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
	b.count = 0
}
