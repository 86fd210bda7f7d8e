// Package stats holds the pure numeric routines behind variant selection
// and reporting: Thompson-Sampling Beta draws and confidence estimates.
package stats

import (
	"math"
	"math/rand/v2"
)

// SampleBeta draws one sample from Beta(alpha, beta) as X/(X+Y) with
// X ~ Gamma(alpha) and Y ~ Gamma(beta). Alpha and beta must be positive.
// Safe for concurrent use: all randomness comes from local draws.
func SampleBeta(alpha, beta float64) float64 {
	x := sampleGamma(alpha)
	y := sampleGamma(beta)
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape) using Marsaglia and Tsang's method.
// This is a rejection sampler: the expected iteration count is small but
// there is no fixed bound.
func sampleGamma(shape float64) float64 {
	if shape < 1 {
		// Boost to shape+1 and scale back by U^(1/shape).
		u := 1 - rand.Float64()
		return sampleGamma(shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)

	for {
		var x, v float64
		for {
			x = randNorm()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}

		v = v * v * v
		u := 1 - rand.Float64()

		if u < 1-0.0331*(x*x)*(x*x) {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// randNorm draws a standard normal via the Box-Muller transform.
func randNorm() float64 {
	u1 := 1 - rand.Float64() // (0, 1], keeps the log finite
	u2 := rand.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
