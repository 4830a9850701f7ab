// Package rng is the seeded pseudo-random source consumed by the
// negotiation engine for probe/announce jitter and random interval
// placement. A Source must never be shared across independent client
// instances, and must not be touched by anything outside the engine's own
// entry points -- doing so would make timing-dependent test scenarios
// non-reproducible.
package rng

import "math/rand/v2"

// Source is a seeded uniform integer generator.
type Source struct {
	r *rand.Rand
}

// New returns a Source seeded deterministically from seed. The same seed
// always produces the same sequence, which is what makes property-based
// and scenario tests reproducible.
func New(seed uint64) *Source {
	return &Source{r: rand.New(rand.NewPCG(seed, seed^0xd1b54a32d192ed03))}
}

// UniformInt returns a uniformly distributed integer in [lo, hi]
// inclusive. It panics if hi < lo.
func (s *Source) UniformInt(lo, hi int) int {
	if hi < lo {
		panic("rng: UniformInt requires hi >= lo")
	}
	if hi == lo {
		return lo
	}
	return lo + s.r.IntN(hi-lo+1)
}

// UniformUint32 returns a uniformly distributed value in [0, n).
// It panics if n == 0.
func (s *Source) UniformUint32(n uint32) uint32 {
	return uint32(s.r.Uint32N(n))
}
