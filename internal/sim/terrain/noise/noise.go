// Package noise layers seeded 2D OpenSimplex noise into fractal fields.
//
// Every function here is pure: output depends only on the arguments. The
// generator for a seed is memoised process-wide, but rebuilding it gives the
// same field, so the cache never affects results.
package noise

import (
	"math"
	"sync"

	"github.com/ojrac/opensimplex-go"

	"terrastream.ai/internal/sim/mathx"
)

// fields is read-mostly; two goroutines may build the same generator
// concurrently and LoadOrStore keeps whichever lands first.
var fields sync.Map // int64 -> opensimplex.Noise

func fieldFor(seed int64) opensimplex.Noise {
	if f, ok := fields.Load(seed); ok {
		return f.(opensimplex.Noise)
	}
	actual, _ := fields.LoadOrStore(seed, opensimplex.New(seed))
	return actual.(opensimplex.Noise)
}

// Sample returns fractal Brownian motion noise in [-1, 1].
func Sample(x, y float64, seed int64, octaves int, persistence, lacunarity, scale float64) float64 {
	if octaves <= 0 {
		return 0
	}
	f := fieldFor(seed)
	freq := scale
	amp := 1.0
	var total, norm float64
	for i := 0; i < octaves; i++ {
		total += f.Eval2(x*freq, y*freq) * amp
		norm += amp
		amp *= persistence
		freq *= lacunarity
	}
	if norm == 0 {
		return 0
	}
	return mathx.Clamp(total/norm, -1, 1)
}

// RidgedSample accumulates (1-|v|)^2 per octave, producing sharp crests.
// The result is in [0, 1].
func RidgedSample(x, y float64, seed int64, octaves int, persistence, lacunarity, scale float64) float64 {
	if octaves <= 0 {
		return 0
	}
	f := fieldFor(seed)
	freq := scale
	amp := 1.0
	var total, norm float64
	for i := 0; i < octaves; i++ {
		v := mathx.Clamp(f.Eval2(x*freq, y*freq), -1, 1)
		r := 1 - math.Abs(v)
		total += r * r * amp
		norm += amp
		amp *= persistence
		freq *= lacunarity
	}
	if norm == 0 {
		return 0
	}
	return mathx.Clamp(total/norm, 0, 1)
}

// Octaves bundles the fractal parameters used by callers that sample the
// same channel repeatedly.
type Octaves struct {
	Count       int
	Persistence float64
	Lacunarity  float64
	Scale       float64
}

func (o Octaves) Sample(x, y float64, seed int64) float64 {
	return Sample(x, y, seed, o.Count, o.Persistence, o.Lacunarity, o.Scale)
}

func (o Octaves) Ridged(x, y float64, seed int64) float64 {
	return RidgedSample(x, y, seed, o.Count, o.Persistence, o.Lacunarity, o.Scale)
}
