// Package scene builds point-source catalogs: a synthetic train generated
// from seeded random samples with simplex surface texture, or tuples loaded
// from JSON.
package scene

import (
	"log/slog"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/holotrain/internal/optics"
)

// GenConfig holds train generation parameters. Lengths are in metres.
type GenConfig struct {
	Count           int     // Number of point sources
	Seed            int64   // Random seed (0 = random)
	ViewingDistance float64 // Depth the train is centred on
	Length          float64 // Extent along x, centred on the optical axis
	Bottom, Top     float64 // Extent along y
	Depth           float64 // Half-extent along z around ViewingDistance
	FrontFalloff    float64 // Intensity lost from centre to either end
	Texture         float64 // Weight of the simplex surface texture (0–1)
}

// DefaultGenConfig returns the full-size train: one metre long, 40 cm tall,
// 100,000 sources around 0.5 m.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Count:           100000,
		Seed:            0,
		ViewingDistance: 0.5,
		Length:          1.0,
		Bottom:          -0.1,
		Top:             0.3,
		Depth:           0.1,
		FrontFalloff:    0.5,
		Texture:         0.2,
	}
}

// SmallTestConfig returns a sub-millimetre model that a 64×64 SLM can
// represent without aliasing.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Count:           200,
		Seed:            42,
		ViewingDistance: 0.5,
		Length:          4e-4,
		Bottom:          -1e-4,
		Top:             1e-4,
		Depth:           0.02,
		FrontFalloff:    0.5,
		Texture:         0.2,
	}
}

// Generate samples the train volume uniformly. Intensity falls off linearly
// with |x| and is modulated by simplex noise so the surface is not flat.
func Generate(cfg GenConfig) *optics.Catalog {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))
	texture := opensimplex.NewNormalized(seed)

	srcs := make([]optics.PointSource, cfg.Count)
	for n := range srcs {
		x := (rng.Float64() - 0.5) * cfg.Length
		y := cfg.Bottom + rng.Float64()*(cfg.Top-cfg.Bottom)
		z := cfg.ViewingDistance + (2*rng.Float64()-1)*cfg.Depth

		intensity := 1.0
		if cfg.Length > 0 {
			intensity -= cfg.FrontFalloff * math.Abs(x) / cfg.Length
		}
		if cfg.Texture > 0 && cfg.Length > 0 {
			// Sample in units of the train length so the pattern scales
			// with the model.
			t := octaveNoise(texture, x/cfg.Length, y/cfg.Length, (z-cfg.ViewingDistance)/cfg.Length, 3, 4, 0.5)
			intensity *= 1 - cfg.Texture + cfg.Texture*t
		}
		srcs[n] = optics.PointSource{X: x, Y: y, Z: z, Intensity: intensity}
	}

	cat := optics.NewCatalog(srcs)
	slog.Info("scene generated", "sources", cat.Len(), "seed", seed)
	return cat
}

// octaveNoise layers frequencies of normalized simplex noise; the result
// stays in [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y, z float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval3(x*frequency, y*frequency, z*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
