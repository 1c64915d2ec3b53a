package optics

import (
	"fmt"
	"math"
)

// Contribution returns the complex wavefront of source p at SLM pixel (i, j):
//
//	c = (I/r)·exp(i·k·r),  r = |pixel − p|
//
// This is the scalar Huygens–Fresnel spherical wave. A source closer than
// cfg.Epsilon() to the pixel is an InputError rather than an infinity.
func Contribution(p PointSource, i, j int, cfg Config) (complex128, error) {
	u, v := cfg.PixelPosition(i, j)
	r := Distance(p, u, v)
	if r < cfg.Epsilon() {
		return 0, &InputError{Field: "z", Index: -1, Reason: fmt.Sprintf("source at (%g, %g, %g) is %g from pixel (%d,%d)", p.X, p.Y, p.Z, r, i, j)}
	}
	return Wave(p.Intensity, r, cfg.WaveNumber()), nil
}

// Distance returns the distance from p to the SLM point (u, v, 0).
func Distance(p PointSource, u, v float64) float64 {
	dx := u - p.X
	dy := v - p.Y
	return math.Sqrt(dx*dx + dy*dy + p.Z*p.Z)
}

// Wave evaluates (a/r)·exp(i·k·r). The phase k·r stays in float64 until
// math.Sincos reduces it; at 0.5 m and 532 nm it is ~6e6 rad and float32
// would lose whole fringes.
func Wave(a, r, k float64) complex128 {
	s, c := math.Sincos(k * r)
	amp := a / r
	return complex(amp*c, amp*s)
}

// Phase returns the analytic spherical-wave phase k·r wrapped into (−π, π].
func Phase(p PointSource, i, j int, cfg Config) float64 {
	u, v := cfg.PixelPosition(i, j)
	return WrapSigned(cfg.WaveNumber() * Distance(p, u, v))
}

// WrapSigned wraps an angle into (−π, π].
func WrapSigned(phi float64) float64 {
	w := math.Mod(phi, 2*math.Pi)
	if w > math.Pi {
		w -= 2 * math.Pi
	} else if w <= -math.Pi {
		w += 2 * math.Pi
	}
	return w
}

// WrapUnsigned wraps an angle into [0, 2π).
func WrapUnsigned(phi float64) float64 {
	w := math.Mod(phi, 2*math.Pi)
	if w < 0 {
		w += 2 * math.Pi
	}
	if w >= 2*math.Pi {
		w = 0
	}
	return w
}
