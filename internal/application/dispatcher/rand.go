package dispatcher

import "math/rand/v2"

// Rand is the weighted picker's source of randomness, injected so tests can
// supply a deterministic sequence.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// SystemRand is the default Rand backed by math/rand/v2's global source.
type SystemRand struct{}

func (SystemRand) Float64() float64 { return rand.Float64() }
func (SystemRand) IntN(n int) int   { return rand.IntN(n) }
