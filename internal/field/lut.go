package field

import (
	"context"
	"math"

	"github.com/talgya/holotrain/internal/optics"
)

// LookupTable replaces the per-pair sin/cos with a table of exp(i·k·r).
// Because exp(i·k·r) has period λ in r, one wavelength sampled at
// Δr = λ/N covers every radius; the radius is reduced as frac(r/λ) in
// float64 before indexing. The 1/r amplitude is still computed exactly.
//
// Error bound per contribution, relative to its amplitude:
//
//	Linear:  (k·Δr)²/8 = (2π/N)²/8   (≈ 2.9e-7 for N = 4096)
//	Nearest: k·Δr/2    = π/N         (≈ 7.7e-4 for N = 4096)
type LookupTable struct {
	opts Options
}

// Strategy implements Accumulator.
func (l *LookupTable) Strategy() Strategy { return StrategyLookupTable }

// ErrorBound returns the worst-case relative error of one tabulated phasor.
func (l *LookupTable) ErrorBound() float64 {
	step := 2 * math.Pi / float64(l.opts.TableSize)
	if l.opts.Interpolation == Nearest {
		return step / 2
	}
	return step * step / 8
}

// Accumulate implements Accumulator.
func (l *LookupTable) Accumulate(ctx context.Context, cat *optics.Catalog, cfg optics.Config) (*ComplexField, error) {
	if err := validate(cat, cfg); err != nil {
		return nil, err
	}
	t := newPhaseTable(l.opts.TableSize, cfg.Wavelength)
	ph := t.linear
	if l.opts.Interpolation == Nearest {
		ph = t.nearest
	}
	return sum(ctx, cat, cfg, l.opts, StrategyLookupTable, ph)
}

// phaseTable holds sin and cos of 2π·n/N for n in [0, N], the extra entry
// closing the period so interpolation never wraps.
type phaseTable struct {
	n         int
	invLambda float64
	sin, cos  []float64
}

func newPhaseTable(n int, wavelength float64) *phaseTable {
	t := &phaseTable{
		n:         n,
		invLambda: 1 / wavelength,
		sin:       make([]float64, n+1),
		cos:       make([]float64, n+1),
	}
	for i := 0; i <= n; i++ {
		t.sin[i], t.cos[i] = math.Sincos(2 * math.Pi * float64(i) / float64(n))
	}
	return t
}

// position returns the fractional table index of radius r.
func (t *phaseTable) position(r float64) float64 {
	cycles := r * t.invLambda
	return (cycles - math.Floor(cycles)) * float64(t.n)
}

func (t *phaseTable) nearest(r float64) (float64, float64) {
	idx := int(t.position(r) + 0.5)
	return t.sin[idx], t.cos[idx]
}

func (t *phaseTable) linear(r float64) (float64, float64) {
	pos := t.position(r)
	idx := int(pos)
	if idx >= t.n {
		idx = t.n - 1
	}
	frac := pos - float64(idx)
	s := t.sin[idx] + frac*(t.sin[idx+1]-t.sin[idx])
	c := t.cos[idx] + frac*(t.cos[idx+1]-t.cos[idx])
	return s, c
}
