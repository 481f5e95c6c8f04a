package probe

import (
	"math"
	"math/rand/v2"
)

// zeroScoreOffset places the zero-score exemplar well away from the reference.
const zeroScoreOffset = 5.0

// Reference returns a smooth trajectory: channel c follows a sine wave with a
// per-channel phase so channels are distinguishable.
func Reference(frames, channels int) [][]float64 {
	out := make([][]float64, frames)
	for i := range out {
		row := make([]float64, channels)
		t := 2 * math.Pi * float64(i) / float64(max(frames-1, 1))
		for c := range row {
			row[c] = math.Sin(t + float64(c)*math.Pi/float64(channels))
		}
		out[i] = row
	}
	return out
}

// ZeroScore returns the reference shifted by a constant offset on every channel.
func ZeroScore(ref [][]float64) [][]float64 {
	out := make([][]float64, len(ref))
	for i, row := range ref {
		shifted := make([]float64, len(row))
		for c, v := range row {
			shifted[c] = v + zeroScoreOffset
		}
		out[i] = shifted
	}
	return out
}

// Generator produces noisy copies of a reference. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a deterministic generator for seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Noisy returns ref with Gaussian noise of standard deviation sigma added to
// every value.
func (g *Generator) Noisy(ref [][]float64, sigma float64) [][]float64 {
	out := make([][]float64, len(ref))
	for i, row := range ref {
		noisy := make([]float64, len(row))
		for c, v := range row {
			noisy[c] = v + g.rng.NormFloat64()*sigma
		}
		out[i] = noisy
	}
	return out
}
