package sim

import "math/rand"

// Random is the uniform source used by the spawn model. *rand.Rand satisfies it.
type Random interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// NewRandom returns a seeded source. The same seed reproduces a run exactly.
func NewRandom(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
