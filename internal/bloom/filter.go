// Package bloom provides a probabilistic set used to pre-screen identifiers
// for duplicates before exact confirmation.
package bloom

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Filter provides probabilistic membership testing with configurable false
// positive rate. It never yields false negatives: once an item was added,
// Contains always returns true for it.
type Filter struct {
	mu        sync.RWMutex
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64 // number of items added
}

// New creates a filter with the specified number of bits and hash functions.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	// Round up to nearest 64 bits for efficient storage
	numWords := (numBits + 63) / 64

	return &Filter{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates creates a filter sized for the expected number of items
// and target false positive rate.
func NewWithEstimates(expectedItems int, targetFPR float64) *Filter {
	return New(OptimalParameters(expectedItems, targetFPR))
}

// OptimalParameters calculates the optimal number of bits and hash functions
// for a given expected number of items and target false positive rate.
//
// The formulas are:
//   - m = -n * ln(p) / (ln(2)^2)  where m = bits, n = items, p = FPR
//   - k = (m/n) * ln(2)           where k = hash functions
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil((m / n) * math.Ln2))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add adds an item to the filter.
func (f *Filter) Add(item string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.add(item)
}

// TestAndAdd adds an item and reports whether it might already have been present.
func (f *Filter) TestAndAdd(item string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	present := f.contains(item)
	f.add(item)
	return present
}

// Contains tests if an item might be in the filter.
func (f *Filter) Contains(item string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.contains(item)
}

func (f *Filter) add(item string) {
	h1, h2 := murmur3.Sum128([]byte(item))
	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

func (f *Filter) contains(item string) bool {
	h1, h2 := murmur3.Sum128([]byte(item))
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// NumBits returns the number of bits in the filter.
func (f *Filter) NumBits() int {
	return int(f.numBits)
}

// NumHashes returns the number of hash functions used.
func (f *Filter) NumHashes() int {
	return int(f.numHashes)
}

// Count returns the number of items added to the filter.
func (f *Filter) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// FalsePositiveRate returns the estimated false positive rate based on
// the current fill ratio.
//
// Formula: (1 - e^(-k*n/m))^k
// where k = numHashes, n = count, m = numBits
func (f *Filter) FalsePositiveRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
