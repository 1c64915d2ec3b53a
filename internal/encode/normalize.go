package encode

import (
	"fmt"
	"math"

	"github.com/talgya/holotrain/internal/optics"
)

// Normalize checks p against the SLM resolution in cfg, rejects non-finite
// values, and maps every value into Range(mode, r): phases are wrapped,
// amplitudes clamped to [0, 1]. NaN is reported, never repaired.
func Normalize(p *Pattern, cfg optics.Config, r PhaseRange) (*Pattern, error) {
	if p.width != cfg.Width || p.height != cfg.Height {
		return nil, &optics.ValidationError{
			Reason: fmt.Sprintf("pattern is %dx%d, SLM is %dx%d", p.width, p.height, cfg.Width, cfg.Height),
			X:      -1,
			Y:      -1,
		}
	}

	meta := p.meta
	meta.PhaseRange = r
	out := &Pattern{
		width:  p.width,
		height: p.height,
		values: make([]float64, len(p.values)),
		meta:   meta,
	}

	mode := p.meta.Mode
	for n, v := range p.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &optics.ValidationError{
				Reason: "non-finite value",
				X:      n % p.width,
				Y:      n / p.width,
				Value:  v,
			}
		}
		switch {
		case !mode.IsPhase():
			out.values[n] = math.Max(0, math.Min(1, v))
		case r == UnsignedTwoPi:
			out.values[n] = optics.WrapUnsigned(v)
		default:
			out.values[n] = optics.WrapSigned(v)
		}
	}

	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks that every value of p is finite and inside the range its
// metadata declares. Stored patterns are validated on load.
func Validate(p *Pattern) error {
	if len(p.values) != p.width*p.height {
		return &optics.ValidationError{
			Reason: fmt.Sprintf("%d values for a %dx%d pattern", len(p.values), p.width, p.height),
			X:      -1,
			Y:      -1,
		}
	}
	iv := Range(p.meta.Mode, p.meta.PhaseRange)
	for n, v := range p.values {
		if !iv.Contains(v) {
			return &optics.ValidationError{
				Reason: fmt.Sprintf("%s value outside %s", p.meta.Mode, iv),
				X:      n % p.width,
				Y:      n / p.width,
				Value:  v,
			}
		}
	}
	return nil
}
