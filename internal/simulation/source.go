package simulation

import "math/rand/v2"

// Source supplies the randomness consumed by the simulation.
type Source interface {
	// Normal draws from N(mean, std^2).
	Normal(mean, std float64) float64
	// IntN draws uniformly from [0, n).
	IntN(n int) int
}

// NewSource returns a PCG-backed source for one stream of a seeded run.
// Distinct stream values give independent sequences under the same seed.
func NewSource(seed, stream uint64) Source {
	return &pcgSource{r: rand.New(rand.NewPCG(seed, stream))}
}

type pcgSource struct {
	r *rand.Rand
}

func (s *pcgSource) Normal(mean, std float64) float64 {
	return mean + std*s.r.NormFloat64()
}

func (s *pcgSource) IntN(n int) int {
	return s.r.IntN(n)
}

// ZeroNoise is a Source with all randomness removed: Normal returns the
// mean and IntN returns 0.
type ZeroNoise struct{}

func (ZeroNoise) Normal(mean, _ float64) float64 { return mean }

func (ZeroNoise) IntN(int) int { return 0 }
