package app

import "math/rand"

// RandomSource supplies the randomness used for micro-deposit amounts,
// reference codes and simulated settlement outcomes.
type RandomSource interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.Intn(n) }

// DefaultRandom returns a RandomSource backed by math/rand.
func DefaultRandom() RandomSource { return globalRandom{} }

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomCode(r RandomSource, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = referenceAlphabet[r.IntN(len(referenceAlphabet))]
	}
	return string(b)
}
