package rules

import (
	"math/rand/v2"
	"sync"
)

// RandomSource produces uniformly distributed floats in [0, 1)
type RandomSource interface {
	Float64() float64
}

type systemRandom struct{}

func (systemRandom) Float64() float64 { return rand.Float64() }

// SystemRandom returns the process-wide math/rand/v2 generator.
// It is safe for concurrent use.
func SystemRandom() RandomSource {
	return systemRandom{}
}

// NewSeededRandom returns a deterministic PCG-backed source.
// The returned source is not safe for concurrent use; wrap it with Locked
// when a WeightedSpec using it is shared between goroutines.
func NewSeededRandom(seed uint64) RandomSource {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type lockedRandom struct {
	mu  sync.Mutex
	src RandomSource
}

// Locked serializes access to src
func Locked(src RandomSource) RandomSource {
	return &lockedRandom{src: src}
}

func (l *lockedRandom) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}
