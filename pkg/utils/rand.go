package utils

import (
	"math/rand"
	"sync"
	"time"
)

// RandSource is a thread-safe random number generator
type RandSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed. A zero seed
// uses the clock.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// StandardNormalVector returns n independent N(0,1) samples
func (r *RandSource) StandardNormalVector(n int) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, n)
	for i := range out {
		out[i] = r.rng.NormFloat64()
	}
	return out
}

// UniformVector returns a point drawn uniformly from the box spanned by
// lower and upper
func (r *RandSource) UniformVector(lower, upper []float64) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(lower))
	for i := range out {
		out[i] = lower[i] + r.rng.Float64()*(upper[i]-lower[i])
	}
	return out
}

// Global default random source, used for backoff jitter
var defaultRand = NewRandSource(0)

// Float64 returns a random float64 from the default source
func Float64() float64 {
	return defaultRand.Float64()
}
