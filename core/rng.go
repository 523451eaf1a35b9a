package core

import "math/rand"

// RngFromSeed returns a deterministic PRNG for a given seed. In production
// the seed would be derived from a block hash; the simulator substitutes the
// previous block's height for reproducibility (§4.4, §9).
func RngFromSeed(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(seed)))
}

// shuffle permutes xs in place using rng, the same Fisher-Yates shuffle the
// scheduler's Step 5 relies on for tie-breaking between equal-allowance
// requests.
func shuffle[T any](rng *rand.Rand, xs []T) {
	rng.Shuffle(len(xs), func(i, j int) {
		xs[i], xs[j] = xs[j], xs[i]
	})
}
