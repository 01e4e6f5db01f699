package scheduler

import (
	"math"
	"math/rand/v2"
)

// RandomSource is the only source of randomness of a run. Seeding it makes a
// schedule reproducible without changing any distribution.
type RandomSource interface {
	// IntRange returns a uniform integer in [min, max].
	IntRange(min, max int) int
	// Float64 returns a uniform float in [0, 1).
	Float64() float64
}

type mathSource struct {
	r *rand.Rand
}

// NewSource returns a PCG backed source. A zero seed draws a random one.
func NewSource(seed uint64) RandomSource {
	if seed == 0 {
		return mathSource{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return mathSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s mathSource) IntRange(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + s.r.IntN(max-min+1)
}

func (s mathSource) Float64() float64 {
	return s.r.Float64()
}

// Choice returns a uniformly chosen element of items, which must not be empty.
func Choice[T any](src RandomSource, items []T) T {
	return items[src.IntRange(0, len(items)-1)]
}

// Chance reports true with probability p: a uniform draw must exceed 1-p.
// The threshold is rounded so p=0.7 compares against exactly 0.3.
func Chance(src RandomSource, p float64) bool {
	return src.Float64() > skipThreshold(p)
}

func skipThreshold(p float64) float64 {
	return math.Round((1-p)*1e12) / 1e12
}

// Shuffle returns a Fisher-Yates permutation of a copy of items.
func Shuffle[T any](src RandomSource, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := src.IntRange(0, i)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
