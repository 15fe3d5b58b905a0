// Package token generates fixed-length alphanumeric tokens from a seeded
// pseudo-random sequence.
package token

import (
	"encoding/binary"
	"math/rand"

	"github.com/spaolacci/murmur3"
)

// Alphabet is the 62-character alphabet tokens are drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generator produces tokens and bounded integers from a deterministic source.
// Given the same seed and the same sequence of calls, the output sequence is
// reproducible. A Generator is not safe for concurrent use; give each worker
// its own instance (see DeriveSeed).
type Generator struct {
	rng *rand.Rand
}

// New creates a generator seeded with seed.
func New(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns a string of exactly length characters, each drawn
// uniformly and independently from Alphabet. length <= 0 yields "".
func (g *Generator) Generate(length int) string {
	if length <= 0 {
		return ""
	}
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = Alphabet[g.rng.Intn(len(Alphabet))]
	}
	return string(buf)
}

// Intn returns a uniform integer in [lo, hi], both inclusive.
func (g *Generator) Intn(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}

// DeriveSeed derives an independent seed for task index from a base seed.
// Adjacent indexes hash to unrelated seeds, so per-task generators do not
// produce correlated streams.
func DeriveSeed(base int64, index int) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(base))
	binary.BigEndian.PutUint64(buf[8:], uint64(index))
	return int64(murmur3.Sum64(buf[:]))
}

// Capacity reports how many distinct tokens of the given length exist,
// saturating at limit. It is used to reject pool sizes that can never be met.
func Capacity(length int, limit uint64) uint64 {
	if length <= 0 {
		return 1
	}
	total := uint64(1)
	for i := 0; i < length; i++ {
		if total > limit/uint64(len(Alphabet)) {
			return limit
		}
		total *= uint64(len(Alphabet))
	}
	if total > limit {
		return limit
	}
	return total
}
